package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "shiptrack/pkg/domain-errors"
)

func TestParseCarrier(t *testing.T) {
	c, err := ParseCarrier("  Amazon ")
	require.NoError(t, err)
	assert.Equal(t, CarrierAmazon, c)

	_, err = ParseCarrier("dhl")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownCarrier))
	assert.Contains(t, err.Error(), "dhl")

	_, err = ParseCarrier("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownCarrier))
}

func TestNewQueueEntry(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		e, err := NewQueueEntry(EnrollRequest{OrderID: "ORD001", TrackingNumber: "TBA123456789", Carrier: "amazon"})
		require.NoError(t, err)
		assert.Equal(t, QueueEntry{OrderID: "ORD001", TrackingNumber: "TBA123456789", Carrier: CarrierAmazon}, e)
	})

	t.Run("unknown carrier names the order", func(t *testing.T) {
		_, err := NewQueueEntry(EnrollRequest{OrderID: "ORD009", TrackingNumber: "X1", Carrier: "fedex"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownCarrier))
		assert.Contains(t, err.Error(), "ORD009")
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := NewQueueEntry(EnrollRequest{TrackingNumber: "X1", Carrier: "amazon"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = NewQueueEntry(EnrollRequest{OrderID: "ORD1", Carrier: "amazon"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestApply(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	first, ok := Apply(nil, Update{
		OrderID: "ORD001", TrackingNumber: "TBA1", Carrier: CarrierAmazon,
		RawStatus: "Shipped", Status: StatusShipped, EventTime: t0, Source: SourcePoll,
	})
	require.True(t, ok)
	assert.Equal(t, StatusShipped, first.Status)
	assert.Equal(t, SourcePoll, first.Source)
	require.Len(t, first.History, 1)

	t.Run("newer update appends history without mutating input", func(t *testing.T) {
		next, ok := Apply(first, Update{
			OrderID: "ORD001", RawStatus: "Delivered", Status: StatusDelivered,
			EventTime: t0.Add(time.Hour), Source: SourceWebhook,
		})
		require.True(t, ok)
		assert.Equal(t, StatusDelivered, next.Status)
		assert.Equal(t, "TBA1", next.TrackingNumber)
		assert.Equal(t, CarrierAmazon, next.Carrier)
		assert.Len(t, next.History, 2)
		assert.Len(t, first.History, 1)
	})

	t.Run("equal timestamp is applied", func(t *testing.T) {
		_, ok := Apply(first, Update{OrderID: "ORD001", Status: StatusInTransit, EventTime: t0, Source: SourceWebhook})
		assert.True(t, ok)
	})

	t.Run("repeated latest event keeps history but takes the new source", func(t *testing.T) {
		next, ok := Apply(first, Update{
			OrderID: "ORD001", RawStatus: "Shipped", Status: StatusShipped,
			EventTime: t0.In(time.FixedZone("IST", 5*3600+1800)), Source: SourceWebhook,
		})
		require.True(t, ok)
		assert.Len(t, next.History, 1)
		assert.Equal(t, SourceWebhook, next.Source)
		assert.Equal(t, SourcePoll, next.History[0].Source)
	})

	t.Run("same time with a different raw status is appended", func(t *testing.T) {
		next, ok := Apply(first, Update{
			OrderID: "ORD001", RawStatus: "In Transit", Status: StatusInTransit,
			EventTime: t0, Source: SourcePoll,
		})
		require.True(t, ok)
		assert.Len(t, next.History, 2)
	})

	t.Run("older update is stale", func(t *testing.T) {
		next, ok := Apply(first, Update{OrderID: "ORD001", Status: StatusPending, EventTime: t0.Add(-time.Minute)})
		assert.False(t, ok)
		assert.Nil(t, next)
	})
}

func TestParseEventTime(t *testing.T) {
	got, ok := ParseEventTime("2025-03-01T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), got)

	got, ok = ParseEventTime("23 05 2023 11:43:52")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 5, 23, 6, 13, 52, 0, time.UTC), got)

	_, ok = ParseEventTime("yesterday")
	assert.False(t, ok)
	_, ok = ParseEventTime("")
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.False(t, StatusInTransit.IsTerminal())
	assert.True(t, FallbackStatus.IsValid())
	assert.False(t, Status("lost").IsValid())
}
