package models

import (
	"strings"
	"time"
)

// Carrier APIs and webhooks report event times in several layouts. Zone-less
// layouts are read as IST since all three carriers operate in India.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02 01 2006 15:04:05",
	"2006-01-02",
}

var carrierZone = time.FixedZone("IST", 5*60*60+30*60)

// ParseEventTime parses a carrier timestamp. ok is false for empty or
// unrecognised input; callers then fall back to arrival time.
func ParseEventTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, carrierZone); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
