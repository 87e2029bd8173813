package carriers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"shiptrack/internal/tracking/models"
)

// ShiprocketAdapter reads the Shiprocket AWB tracking API.
type ShiprocketAdapter struct {
	baseURL   string
	token     string
	transport transport
}

func NewShiprocketAdapter(baseURL string, opts ...Option) *ShiprocketAdapter {
	o := buildOptions(opts)
	return &ShiprocketAdapter{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     o.token,
		transport: newTransport(models.CarrierShiprocket, o.client, o.timeout),
	}
}

func (a *ShiprocketAdapter) Carrier() models.Carrier {
	return models.CarrierShiprocket
}

func (a *ShiprocketAdapter) Fetch(ctx context.Context, trackingNumber string) (*models.RawStatusResult, error) {
	endpoint := a.baseURL + "/courier/track/awb/" + url.PathEscape(trackingNumber)
	status, body, err := a.transport.get(ctx, endpoint, bearerHeaders(a.token))
	if err != nil {
		return nil, err
	}
	return parseShiprocketResponse(status, body)
}

type shiprocketResponse struct {
	TrackingData *struct {
		ShipmentTrack []struct {
			CurrentStatus string `json:"current_status"`
			Date          string `json:"date"`
			Location      string `json:"location"`
		} `json:"shipment_track"`
		Error string `json:"error"`
	} `json:"tracking_data"`
}

// parseShiprocketResponse takes the last shipment_track entry, which
// Shiprocket orders oldest first.
func parseShiprocketResponse(status int, body []byte) (*models.RawStatusResult, error) {
	carrier := models.CarrierShiprocket.String()
	if status != 200 {
		return nil, classifyStatus(carrier, status)
	}
	var resp shiprocketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newFetchError(ErrorBadData, carrier, "decode response", err)
	}
	if resp.TrackingData == nil || len(resp.TrackingData.ShipmentTrack) == 0 {
		msg := "no tracking data"
		if resp.TrackingData != nil && resp.TrackingData.Error != "" {
			msg = resp.TrackingData.Error
		}
		return nil, newFetchError(ErrorNotFound, carrier, msg, nil)
	}
	track := resp.TrackingData.ShipmentTrack
	latest := track[len(track)-1]
	if strings.TrimSpace(latest.CurrentStatus) == "" {
		return nil, newFetchError(ErrorNotFound, carrier, "latest event has no status", nil)
	}
	ts, _ := models.ParseEventTime(latest.Date)
	return &models.RawStatusResult{
		RawStatus:    latest.CurrentStatus,
		RawTimestamp: ts,
		Location:     latest.Location,
	}, nil
}
