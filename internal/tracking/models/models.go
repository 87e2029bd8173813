package models

import (
	"strings"
	"time"

	dErrors "shiptrack/pkg/domain-errors"
)

// Carrier identifies a shipping provider. The set is closed: anything not
// listed here is rejected at enrollment.
type Carrier string

const (
	CarrierAmazon     Carrier = "amazon"
	CarrierXpressbees Carrier = "xpressbees"
	CarrierShiprocket Carrier = "shiprocket"
)

// Carriers returns every supported carrier in a stable order.
func Carriers() []Carrier {
	return []Carrier{CarrierAmazon, CarrierXpressbees, CarrierShiprocket}
}

// IsValid checks if the carrier is one of the supported values.
func (c Carrier) IsValid() bool {
	switch c {
	case CarrierAmazon, CarrierXpressbees, CarrierShiprocket:
		return true
	}
	return false
}

func (c Carrier) String() string {
	return string(c)
}

// ParseCarrier validates a carrier identifier. Matching ignores case and
// surrounding whitespace.
func ParseCarrier(s string) (Carrier, error) {
	c := Carrier(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return "", dErrors.New(dErrors.CodeUnknownCarrier, "carrier cannot be empty")
	}
	if !c.IsValid() {
		return "", dErrors.Newf(dErrors.CodeUnknownCarrier,
			"carrier %q is not supported: must be one of amazon, xpressbees, shiprocket", s)
	}
	return c, nil
}

// Status is the carrier-independent shipment status.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusReturned       Status = "returned"
	StatusDelayed        Status = "delayed"
	StatusUnknown        Status = "unknown"
)

// FallbackStatus is assigned to raw strings no mapping table knows.
const FallbackStatus = StatusProcessing

// IsValid checks if the status is one of the canonical values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusInTransit,
		StatusOutForDelivery, StatusDelivered, StatusReturned, StatusDelayed, StatusUnknown:
		return true
	}
	return false
}

// IsTerminal reports whether no further carrier movement is expected.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusReturned
}

// UpdateSource records which path produced an update.
type UpdateSource string

const (
	SourcePoll    UpdateSource = "POLL"
	SourceWebhook UpdateSource = "WEBHOOK"
)

// RawStatusEntry is one carrier observation kept in a record's history.
type RawStatusEntry struct {
	RawStatus string       `json:"raw_status"`
	Timestamp time.Time    `json:"timestamp"`
	Source    UpdateSource `json:"source"`
}

// OrderTrackingRecord is the authoritative tracking state of one order.
// History is append-only.
type OrderTrackingRecord struct {
	OrderID        string           `json:"order_id"`
	TrackingNumber string           `json:"tracking_number"`
	Carrier        Carrier          `json:"carrier"`
	Status         Status           `json:"status"`
	LastUpdated    time.Time        `json:"last_updated"`
	Source         UpdateSource     `json:"source_of_last_update"`
	History        []RawStatusEntry `json:"raw_status_history"`
}

// Clone returns a deep copy so callers never share the history slice with a store.
func (r *OrderTrackingRecord) Clone() *OrderTrackingRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.History = append([]RawStatusEntry(nil), r.History...)
	return &c
}

// Update is one candidate change produced by a poll or a webhook.
type Update struct {
	OrderID        string
	TrackingNumber string
	Carrier        Carrier
	RawStatus      string
	Status         Status
	EventTime      time.Time
	Source         UpdateSource
}

// IsStaleFor reports whether u is older than the record's last update.
// Equal timestamps are not stale.
func (u Update) IsStaleFor(r *OrderTrackingRecord) bool {
	if r == nil {
		return false
	}
	return u.EventTime.Before(r.LastUpdated)
}

// Apply returns the record that results from applying u to current, or
// ok=false when u is stale. current is never mutated. A repeat of the latest
// history entry (same raw status, same time) is not appended again.
func Apply(current *OrderTrackingRecord, u Update) (next *OrderTrackingRecord, ok bool) {
	if u.IsStaleFor(current) {
		return nil, false
	}
	if current == nil {
		next = &OrderTrackingRecord{OrderID: u.OrderID, Carrier: u.Carrier}
	} else {
		next = current.Clone()
	}
	if u.TrackingNumber != "" {
		next.TrackingNumber = u.TrackingNumber
	}
	if u.Carrier != "" {
		next.Carrier = u.Carrier
	}
	next.Status = u.Status
	next.LastUpdated = u.EventTime
	next.Source = u.Source
	if n := len(next.History); n > 0 && next.History[n-1].repeats(u) {
		return next, true
	}
	next.History = append(next.History, RawStatusEntry{
		RawStatus: u.RawStatus,
		Timestamp: u.EventTime,
		Source:    u.Source,
	})
	return next, true
}

func (e RawStatusEntry) repeats(u Update) bool {
	return e.RawStatus == u.RawStatus && e.Timestamp.Equal(u.EventTime)
}

// QueueEntry is an order waiting for the next tracking cycle.
type QueueEntry struct {
	OrderID        string  `json:"order_id"`
	TrackingNumber string  `json:"tracking_number"`
	Carrier        Carrier `json:"carrier"`
}

// EnrollRequest is the unvalidated enrollment input from an order loader.
type EnrollRequest struct {
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

// NewQueueEntry validates an enrollment request.
func NewQueueEntry(req EnrollRequest) (QueueEntry, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return QueueEntry{}, dErrors.New(dErrors.CodeInvalidInput, "order_id cannot be empty")
	}
	trackingNumber := strings.TrimSpace(req.TrackingNumber)
	if trackingNumber == "" {
		return QueueEntry{}, dErrors.Newf(dErrors.CodeInvalidInput, "order %s: tracking_number cannot be empty", orderID)
	}
	carrier, err := ParseCarrier(req.Carrier)
	if err != nil {
		return QueueEntry{}, dErrors.Newf(dErrors.CodeUnknownCarrier,
			"order %s: carrier %q is not supported", orderID, req.Carrier)
	}
	return QueueEntry{OrderID: orderID, TrackingNumber: trackingNumber, Carrier: carrier}, nil
}

// RawStatusResult is what a carrier adapter returns for one tracking number.
// RawTimestamp is zero when the carrier did not report one.
type RawStatusResult struct {
	RawStatus    string
	RawTimestamp time.Time
	Location     string
}
