package carriers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"shiptrack/internal/tracking/models"
)

// AmazonAdapter reads the public Amazon tracker endpoint.
type AmazonAdapter struct {
	baseURL   string
	transport transport
}

func NewAmazonAdapter(baseURL string, opts ...Option) *AmazonAdapter {
	o := buildOptions(opts)
	return &AmazonAdapter{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: newTransport(models.CarrierAmazon, o.client, o.timeout),
	}
}

func (a *AmazonAdapter) Carrier() models.Carrier {
	return models.CarrierAmazon
}

func (a *AmazonAdapter) Fetch(ctx context.Context, trackingNumber string) (*models.RawStatusResult, error) {
	status, body, err := a.transport.get(ctx, a.baseURL+"/"+url.PathEscape(trackingNumber), map[string]string{
		"Accept":     "application/json",
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	})
	if err != nil {
		return nil, err
	}
	return parseAmazonResponse(status, body)
}

type amazonResponse struct {
	EventHistory []struct {
		StatusText string `json:"statusText"`
		EventTime  string `json:"eventTime"`
		Location   string `json:"location"`
	} `json:"eventHistory"`
}

// parseAmazonResponse takes the first history entry, which Amazon orders
// newest first.
func parseAmazonResponse(status int, body []byte) (*models.RawStatusResult, error) {
	carrier := models.CarrierAmazon.String()
	if status != 200 {
		return nil, classifyStatus(carrier, status)
	}
	var resp amazonResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newFetchError(ErrorBadData, carrier, "decode response", err)
	}
	if len(resp.EventHistory) == 0 || strings.TrimSpace(resp.EventHistory[0].StatusText) == "" {
		return nil, newFetchError(ErrorNotFound, carrier, "no tracking events", nil)
	}
	latest := resp.EventHistory[0]
	ts, _ := models.ParseEventTime(latest.EventTime)
	return &models.RawStatusResult{
		RawStatus:    latest.StatusText,
		RawTimestamp: ts,
		Location:     latest.Location,
	}, nil
}
