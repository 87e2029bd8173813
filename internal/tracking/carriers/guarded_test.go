package carriers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shiptrack/internal/tracking/carriers/mocks"
	"shiptrack/internal/tracking/models"
	"shiptrack/pkg/platform/circuit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type GuardedAdapterSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	inner   *mocks.MockAdapter
	clock   *fakeClock
	guarded *GuardedAdapter
	ctx     context.Context
}

func TestGuardedAdapterSuite(t *testing.T) {
	suite.Run(t, new(GuardedAdapterSuite))
}

func (s *GuardedAdapterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.inner = mocks.NewMockAdapter(s.ctrl)
	s.inner.EXPECT().Carrier().Return(models.CarrierXpressbees).AnyTimes()
	s.clock = &fakeClock{now: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
	breaker := circuit.New("xpressbees",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(s.clock.Now),
	)
	s.guarded = Guard(s.inner, breaker)
	s.ctx = context.Background()
}

func (s *GuardedAdapterSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GuardedAdapterSuite) TestOpensAfterConsecutiveOutages() {
	outage := newFetchError(ErrorOutage, "xpressbees", "carrier returned HTTP 503", nil)
	s.inner.EXPECT().Fetch(gomock.Any(), "XB1").Return(nil, outage).Times(2)

	for range 2 {
		_, err := s.guarded.Fetch(s.ctx, "XB1")
		s.ErrorIs(err, ErrCarrierUnavailable)
	}
	s.True(s.guarded.Breaker().IsOpen())

	// no inner call while open
	_, err := s.guarded.Fetch(s.ctx, "XB2")
	s.ErrorIs(err, ErrCarrierUnavailable)
	s.Equal(ErrorCircuitOpen, Category(err))
}

func (s *GuardedAdapterSuite) TestProbeAfterCooldownCloses() {
	outage := newFetchError(ErrorTimeout, "xpressbees", "request timed out", nil)
	s.inner.EXPECT().Fetch(gomock.Any(), "XB1").Return(nil, outage).Times(2)
	for range 2 {
		_, _ = s.guarded.Fetch(s.ctx, "XB1")
	}
	s.Require().True(s.guarded.Breaker().IsOpen())

	s.clock.Advance(time.Minute)
	s.inner.EXPECT().Fetch(gomock.Any(), "XB1").Return(&models.RawStatusResult{RawStatus: "In Transit"}, nil)

	res, err := s.guarded.Fetch(s.ctx, "XB1")
	s.Require().NoError(err)
	s.Equal("In Transit", res.RawStatus)
	s.False(s.guarded.Breaker().IsOpen())
}

func (s *GuardedAdapterSuite) TestNotFoundDoesNotTrip() {
	notFound := newFetchError(ErrorNotFound, "xpressbees", "no tracking data", nil)
	s.inner.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, notFound).Times(5)

	for range 5 {
		_, err := s.guarded.Fetch(s.ctx, "UNKNOWN")
		s.ErrorIs(err, ErrTrackingNotFound)
	}
	s.False(s.guarded.Breaker().IsOpen())
}

func (s *GuardedAdapterSuite) TestCallerCancellationDoesNotOpenCircuit() {
	s.Run("cancelled by cycle shutdown", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		s.inner.EXPECT().Fetch(gomock.Any(), "XB1").
			Return(nil, classifyTransportError("xpressbees", context.Canceled)).Times(2)

		for range 2 {
			_, err := s.guarded.Fetch(ctx, "XB1")
			s.ErrorIs(err, context.Canceled)
		}
		s.False(s.guarded.Breaker().IsOpen())
	})

	s.Run("caller deadline spent before the call", func() {
		ctx, cancel := context.WithTimeout(s.ctx, time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		s.inner.EXPECT().Fetch(gomock.Any(), "XB2").
			Return(nil, classifyTransportError("xpressbees", context.DeadlineExceeded)).Times(2)

		for range 2 {
			_, err := s.guarded.Fetch(ctx, "XB2")
			s.ErrorIs(err, ErrCarrierUnavailable)
		}
		s.False(s.guarded.Breaker().IsOpen())
	})

	s.Run("carrier timeout under a live context still counts", func() {
		timeout := classifyTransportError("xpressbees", context.DeadlineExceeded)
		s.inner.EXPECT().Fetch(gomock.Any(), "XB3").Return(nil, timeout).Times(2)

		for range 2 {
			_, err := s.guarded.Fetch(s.ctx, "XB3")
			s.ErrorIs(err, ErrCarrierUnavailable)
		}
		s.True(s.guarded.Breaker().IsOpen())
	})
}
