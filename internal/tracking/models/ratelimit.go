package models

import "time"

// RateLimitResult is the outcome of one sliding-window check.
// On denial ResetAt is the earliest instant a slot frees up.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}
