// Package carriers fetches raw shipment status from carrier tracking APIs.
// Adapters are stateless and read-only, so any call may be retried.
package carriers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shiptrack/internal/tracking/models"
)

// DefaultTimeout bounds each carrier HTTP call.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

var tracer = otel.Tracer("shiptrack/internal/tracking/carriers")

//go:generate mockgen -package=mocks -destination=mocks/mocks.go . Adapter

// Adapter fetches the latest raw status for a tracking number.
type Adapter interface {
	Carrier() models.Carrier
	Fetch(ctx context.Context, trackingNumber string) (*models.RawStatusResult, error)
}

// Registry maps each carrier to its adapter.
type Registry struct {
	adapters map[models.Carrier]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[models.Carrier]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter; each carrier may be registered once.
func (r *Registry) Register(a Adapter) error {
	c := a.Carrier()
	if !c.IsValid() {
		return fmt.Errorf("adapter for unsupported carrier %q", c)
	}
	if _, exists := r.adapters[c]; exists {
		return fmt.Errorf("adapter for %s already registered", c)
	}
	r.adapters[c] = a
	return nil
}

func (r *Registry) Get(c models.Carrier) (Adapter, bool) {
	a, ok := r.adapters[c]
	return a, ok
}

// Carriers lists registered carriers in the canonical carrier order.
func (r *Registry) Carriers() []models.Carrier {
	var out []models.Carrier
	for _, c := range models.Carriers() {
		if _, ok := r.adapters[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// httpDoer is the subset of *http.Client the adapters use.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// transport performs one GET against a carrier and returns status and body.
// Transport failures come back as a classified FetchError.
type transport struct {
	carrier models.Carrier
	client  httpDoer
	timeout time.Duration
}

func newTransport(carrier models.Carrier, client httpDoer, timeout time.Duration) transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return transport{carrier: carrier, client: client, timeout: timeout}
}

func (t transport) get(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	ctx, span := tracer.Start(ctx, "carrier.fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("carrier", t.carrier.String()),
		attribute.String("http.url", url),
	)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, newFetchError(ErrorBadData, t.carrier.String(), "build request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		fe := classifyTransportError(t.carrier.String(), err)
		span.SetStatus(codes.Error, fe.Error())
		span.RecordError(fe)
		return 0, nil, fe
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		fe := classifyTransportError(t.carrier.String(), err)
		span.SetStatus(codes.Error, fe.Error())
		return 0, nil, fe
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, body, nil
}

type options struct {
	client  httpDoer
	timeout time.Duration
	token   string
}

type Option func(*options)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithToken sets the bearer token sent to carriers that need one.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func bearerHeaders(token string) map[string]string {
	h := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}
