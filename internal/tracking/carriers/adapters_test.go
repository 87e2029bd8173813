package carriers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptrack/internal/tracking/models"
)

func TestParseAmazonResponse(t *testing.T) {
	t.Run("takes the newest event", func(t *testing.T) {
		body := []byte(`{"eventHistory":[
			{"statusText":"Out for delivery","eventTime":"2025-01-15T08:30:00Z","location":"Mumbai"},
			{"statusText":"Shipped","eventTime":"2025-01-13T10:00:00Z","location":"Pune"}
		]}`)
		res, err := parseAmazonResponse(200, body)
		require.NoError(t, err)
		assert.Equal(t, "Out for delivery", res.RawStatus)
		assert.Equal(t, "Mumbai", res.Location)
		assert.True(t, res.RawTimestamp.Equal(time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)))
	})

	t.Run("missing event time leaves timestamp zero", func(t *testing.T) {
		res, err := parseAmazonResponse(200, []byte(`{"eventHistory":[{"statusText":"Shipped"}]}`))
		require.NoError(t, err)
		assert.True(t, res.RawTimestamp.IsZero())
	})

	t.Run("empty history is not found", func(t *testing.T) {
		_, err := parseAmazonResponse(200, []byte(`{"eventHistory":[]}`))
		assert.ErrorIs(t, err, ErrTrackingNotFound)
		assert.NotErrorIs(t, err, ErrCarrierUnavailable)
	})

	t.Run("malformed body is bad data", func(t *testing.T) {
		_, err := parseAmazonResponse(200, []byte(`<html>`))
		assert.Equal(t, ErrorBadData, Category(err))
		assert.ErrorIs(t, err, ErrCarrierUnavailable)
	})
}

func TestParseXpressbeesResponse(t *testing.T) {
	t.Run("success payload", func(t *testing.T) {
		body := []byte(`{"status":"success","data":{"current_status":"Picked Up","current_location":"Delhi Hub","last_update_time":"2025-01-14 18:45:00"}}`)
		res, err := parseXpressbeesResponse(200, body)
		require.NoError(t, err)
		assert.Equal(t, "Picked Up", res.RawStatus)
		assert.Equal(t, "Delhi Hub", res.Location)
		assert.False(t, res.RawTimestamp.IsZero())
	})

	t.Run("non-success status is not found", func(t *testing.T) {
		_, err := parseXpressbeesResponse(200, []byte(`{"status":"failed","message":"AWB not found"}`))
		assert.ErrorIs(t, err, ErrTrackingNotFound)
	})
}

func TestParseShiprocketResponse(t *testing.T) {
	t.Run("takes the last track entry", func(t *testing.T) {
		body := []byte(`{"tracking_data":{"shipment_track":[
			{"current_status":"PICKED UP","date":"2025-01-13 09:00:00","location":"Bengaluru"},
			{"current_status":"IN TRANSIT","date":"2025-01-14 11:00:00","location":"Hyderabad"}
		]}}`)
		res, err := parseShiprocketResponse(200, body)
		require.NoError(t, err)
		assert.Equal(t, "IN TRANSIT", res.RawStatus)
		assert.Equal(t, "Hyderabad", res.Location)
	})

	t.Run("carrier error message surfaces as not found", func(t *testing.T) {
		_, err := parseShiprocketResponse(200, []byte(`{"tracking_data":{"track_status":0,"error":"Aahh! There is no activity found in your shipment."}}`))
		require.ErrorIs(t, err, ErrTrackingNotFound)
		assert.Contains(t, err.Error(), "no activity")
	})
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status    int
		category  ErrorCategory
		transient bool
	}{
		{404, ErrorNotFound, false},
		{401, ErrorAuthentication, true},
		{429, ErrorRateLimited, true},
		{503, ErrorOutage, true},
		{400, ErrorBadData, false},
	}
	for _, tc := range cases {
		err := classifyStatus("amazon", tc.status)
		assert.Equal(t, tc.category, err.Category, "HTTP %d", tc.status)
		assert.Equal(t, tc.transient, err.Transient(), "HTTP %d", tc.status)
	}
}

func TestAdaptersOverHTTP(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/tracker/AMZ123":
			_, _ = w.Write([]byte(`{"eventHistory":[{"statusText":"Delivered","eventTime":"2025-01-15T12:00:00Z"}]}`))
		case "/api/shipments/track/XB123":
			_, _ = w.Write([]byte(`{"status":"success","data":{"current_status":"Delivered"}}`))
		case "/v1/external/courier/track/awb/SR123":
			_, _ = w.Write([]byte(`{"tracking_data":{"shipment_track":[{"current_status":"DELIVERED"}]}}`))
		case "/tracker/DOWN":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	t.Run("amazon", func(t *testing.T) {
		res, err := NewAmazonAdapter(srv.URL+"/tracker/").Fetch(ctx, "AMZ123")
		require.NoError(t, err)
		assert.Equal(t, "Delivered", res.RawStatus)
		assert.Equal(t, "/tracker/AMZ123", gotPath)
	})

	t.Run("xpressbees sends bearer token", func(t *testing.T) {
		res, err := NewXpressbeesAdapter(srv.URL+"/api", WithToken("xb-token")).Fetch(ctx, "XB123")
		require.NoError(t, err)
		assert.Equal(t, "Delivered", res.RawStatus)
		assert.Equal(t, "Bearer xb-token", gotAuth)
	})

	t.Run("shiprocket", func(t *testing.T) {
		res, err := NewShiprocketAdapter(srv.URL+"/v1/external", WithToken("sr-token")).Fetch(ctx, "SR123")
		require.NoError(t, err)
		assert.Equal(t, "DELIVERED", res.RawStatus)
	})

	t.Run("unknown tracking number", func(t *testing.T) {
		_, err := NewShiprocketAdapter(srv.URL + "/v1/external").Fetch(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrTrackingNotFound)
	})

	t.Run("5xx is unavailable", func(t *testing.T) {
		_, err := NewAmazonAdapter(srv.URL + "/tracker").Fetch(ctx, "DOWN")
		assert.ErrorIs(t, err, ErrCarrierUnavailable)
		assert.True(t, IsTransient(err))
	})
}

func TestAdapterTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewAmazonAdapter(srv.URL, WithTimeout(30*time.Millisecond)).Fetch(context.Background(), "SLOW")
	require.Error(t, err)
	assert.Equal(t, ErrorTimeout, Category(err))
	assert.ErrorIs(t, err, ErrCarrierUnavailable)
}

func TestRegistry(t *testing.T) {
	amazon := NewAmazonAdapter("http://amazon.test")
	r, err := NewRegistry(amazon, NewShiprocketAdapter("http://shiprocket.test"))
	require.NoError(t, err)

	got, ok := r.Get(models.CarrierAmazon)
	require.True(t, ok)
	assert.Same(t, amazon, got)

	_, ok = r.Get(models.CarrierXpressbees)
	assert.False(t, ok)
	assert.Equal(t, []models.Carrier{models.CarrierAmazon, models.CarrierShiprocket}, r.Carriers())

	assert.Error(t, r.Register(NewAmazonAdapter("http://other.test")))
}
