package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("apply update: %w", Wrap(base, CodeUnavailable, "status store unavailable"))

	assert.True(t, HasCode(err, CodeUnavailable))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.ErrorIs(t, err, base)
	assert.False(t, HasCode(base, CodeUnavailable))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeUnknownCarrier, CodeOf(New(CodeUnknownCarrier, "carrier dhl is not supported")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "not_found: order ORD001", Newf(CodeNotFound, "order %s", "ORD001").Error())
	assert.Equal(t, "internal_error: write: boom", Wrap(errors.New("boom"), CodeInternal, "write").Error())
}
