package normalizer

import "shiptrack/internal/tracking/models"

// DefaultTables holds the built-in raw status vocabularies. Keys are written
// in their canonical lookup form (see Key).
func DefaultTables() Tables {
	return Tables{
		models.CarrierAmazon: {
			"ordered":          models.StatusPending,
			"label created":    models.StatusPending,
			"shipped":          models.StatusShipped,
			"in transit":       models.StatusInTransit,
			"arriving today":   models.StatusOutForDelivery,
			"out for delivery": models.StatusOutForDelivery,
			"delivered":        models.StatusDelivered,
			"delayed":          models.StatusDelayed,
			"undeliverable":    models.StatusDelayed,
			"returned":         models.StatusReturned,
			"return to sender": models.StatusReturned,
		},
		models.CarrierXpressbees: {
			"pickup scheduled":   models.StatusProcessing,
			"pending pickup":     models.StatusPending,
			"picked up":          models.StatusShipped,
			"in transit":         models.StatusInTransit,
			"reached at hub":     models.StatusInTransit,
			"out for delivery":   models.StatusOutForDelivery,
			"delivered":          models.StatusDelivered,
			"undelivered":        models.StatusDelayed,
			"rto":                models.StatusReturned,
			"rto delivered":      models.StatusReturned,
			"shipment exception": models.StatusDelayed,
		},
		models.CarrierShiprocket: {
			"pickup scheduled": models.StatusProcessing,
			"pickup generated": models.StatusProcessing,
			"picked up":        models.StatusShipped,
			"shipped":          models.StatusShipped,
			"in transit":       models.StatusInTransit,
			"out for delivery": models.StatusOutForDelivery,
			"delivered":        models.StatusDelivered,
			"rto":              models.StatusReturned,
			"rto initiated":    models.StatusReturned,
			"rto delivered":    models.StatusReturned,
			"exception":        models.StatusDelayed,
			"delayed":          models.StatusDelayed,
		},
	}
}
