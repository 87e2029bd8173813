package carriers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"shiptrack/internal/tracking/models"
)

// XpressbeesAdapter reads the Xpressbees shipment tracking API.
type XpressbeesAdapter struct {
	baseURL   string
	token     string
	transport transport
}

func NewXpressbeesAdapter(baseURL string, opts ...Option) *XpressbeesAdapter {
	o := buildOptions(opts)
	return &XpressbeesAdapter{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     o.token,
		transport: newTransport(models.CarrierXpressbees, o.client, o.timeout),
	}
}

func (a *XpressbeesAdapter) Carrier() models.Carrier {
	return models.CarrierXpressbees
}

func (a *XpressbeesAdapter) Fetch(ctx context.Context, trackingNumber string) (*models.RawStatusResult, error) {
	endpoint := a.baseURL + "/shipments/track/" + url.PathEscape(trackingNumber)
	status, body, err := a.transport.get(ctx, endpoint, bearerHeaders(a.token))
	if err != nil {
		return nil, err
	}
	return parseXpressbeesResponse(status, body)
}

type xpressbeesResponse struct {
	Status string `json:"status"`
	Data   *struct {
		CurrentStatus   string `json:"current_status"`
		CurrentLocation string `json:"current_location"`
		LastUpdateTime  string `json:"last_update_time"`
	} `json:"data"`
}

func parseXpressbeesResponse(status int, body []byte) (*models.RawStatusResult, error) {
	carrier := models.CarrierXpressbees.String()
	if status != 200 {
		return nil, classifyStatus(carrier, status)
	}
	var resp xpressbeesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newFetchError(ErrorBadData, carrier, "decode response", err)
	}
	if !strings.EqualFold(resp.Status, "success") || resp.Data == nil || strings.TrimSpace(resp.Data.CurrentStatus) == "" {
		return nil, newFetchError(ErrorNotFound, carrier, "no tracking data", nil)
	}
	ts, _ := models.ParseEventTime(resp.Data.LastUpdateTime)
	return &models.RawStatusResult{
		RawStatus:    resp.Data.CurrentStatus,
		RawTimestamp: ts,
		Location:     resp.Data.CurrentLocation,
	}, nil
}
