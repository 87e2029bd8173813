// Package normalizer maps carrier-specific raw status strings onto the
// canonical status set. Mapping is pure table lookup: adding a carrier or a
// status string means adding table data, never control flow.
package normalizer

import (
	"strings"

	"shiptrack/internal/tracking/models"
)

// Tables maps carrier -> lookup key -> canonical status.
type Tables map[models.Carrier]map[string]models.Status

// Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	tables   Tables
	fallback models.Status
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithFallback overrides the status assigned to unmapped raw strings.
func WithFallback(s models.Status) Option {
	return func(n *Normalizer) {
		if s.IsValid() {
			n.fallback = s
		}
	}
}

// WithTables merges extra entries over the defaults. Later entries win.
func WithTables(extra Tables) Option {
	return func(n *Normalizer) {
		n.merge(extra)
	}
}

// New builds a normalizer seeded with DefaultTables.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		tables:   Tables{},
		fallback: models.FallbackStatus,
	}
	n.merge(DefaultTables())
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) merge(extra Tables) {
	for carrier, table := range extra {
		dst, ok := n.tables[carrier]
		if !ok {
			dst = make(map[string]models.Status, len(table))
			n.tables[carrier] = dst
		}
		for raw, status := range table {
			dst[Key(raw)] = status
		}
	}
}

// Normalize returns the canonical status for a raw carrier string. It is
// total: unknown carriers and unmapped strings yield the fallback status.
func (n *Normalizer) Normalize(carrier models.Carrier, raw string) models.Status {
	if status, ok := n.Lookup(carrier, raw); ok {
		return status
	}
	return n.fallback
}

// Lookup reports whether the raw string is mapped for the carrier.
func (n *Normalizer) Lookup(carrier models.Carrier, raw string) (models.Status, bool) {
	table, ok := n.tables[carrier]
	if !ok {
		return "", false
	}
	status, ok := table[Key(raw)]
	return status, ok
}

// Fallback returns the status used for unmapped input.
func (n *Normalizer) Fallback() models.Status {
	return n.fallback
}

// Key folds a raw status into lookup form: lower case, '_' and '-' read as
// spaces, runs of whitespace collapsed.
func Key(raw string) string {
	raw = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, raw)
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
