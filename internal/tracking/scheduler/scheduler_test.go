package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/orchestrator"
	dErrors "shiptrack/pkg/domain-errors"
)

type fakeLoader struct {
	reqs []models.EnrollRequest
	err  error
}

func (l fakeLoader) Load(context.Context) ([]models.EnrollRequest, error) {
	return l.reqs, l.err
}

type fakeEngine struct {
	mu       sync.Mutex
	enrolled []string
	cycles   int
	cycleErr error
	cycled   chan struct{}
}

func (e *fakeEngine) Enroll(_ context.Context, reqs []models.EnrollRequest) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range reqs {
		if _, err := models.NewQueueEntry(r); err != nil {
			return 0, err
		}
	}
	for _, r := range reqs {
		e.enrolled = append(e.enrolled, r.OrderID)
	}
	return len(reqs), nil
}

func (e *fakeEngine) RunCycle(context.Context) (orchestrator.CycleReport, error) {
	e.mu.Lock()
	e.cycles++
	err := e.cycleErr
	e.mu.Unlock()
	if e.cycled != nil {
		select {
		case e.cycled <- struct{}{}:
		default:
		}
	}
	return orchestrator.CycleReport{}, err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, time.Minute)
	assert.Error(t, err)
	_, err = New(&fakeEngine{}, 0)
	assert.Error(t, err)
}

func TestTick(t *testing.T) {
	t.Run("enrolls valid rows and skips bad ones", func(t *testing.T) {
		engine := &fakeEngine{}
		s, err := New(engine, time.Hour, WithLogger(quietLogger()), WithLoader(fakeLoader{reqs: []models.EnrollRequest{
			{OrderID: "ORD001", TrackingNumber: "TBA1", Carrier: "amazon"},
			{OrderID: "ORD002", TrackingNumber: "DHL1", Carrier: "dhl"},
			{OrderID: "ORD003", TrackingNumber: "SR1", Carrier: "shiprocket"},
		}}))
		require.NoError(t, err)

		_, err = s.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"ORD001", "ORD003"}, engine.enrolled)
		assert.Equal(t, 1, engine.cycles)
	})

	t.Run("loader failure still runs the cycle", func(t *testing.T) {
		engine := &fakeEngine{}
		s, err := New(engine, time.Hour, WithLogger(quietLogger()), WithLoader(fakeLoader{err: errors.New("db down")}))
		require.NoError(t, err)

		_, err = s.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, engine.cycles)
	})

	t.Run("cycle in progress is not an error", func(t *testing.T) {
		engine := &fakeEngine{cycleErr: dErrors.Wrap(orchestrator.ErrCycleInProgress, dErrors.CodeConflict, "busy")}
		s, err := New(engine, time.Hour, WithLogger(quietLogger()))
		require.NoError(t, err)

		_, err = s.Tick(context.Background())
		assert.NoError(t, err)
	})

	t.Run("structural failure surfaces", func(t *testing.T) {
		engine := &fakeEngine{cycleErr: errors.New("status store unavailable")}
		s, err := New(engine, time.Hour, WithLogger(quietLogger()))
		require.NoError(t, err)

		_, err = s.Tick(context.Background())
		assert.Error(t, err)
	})
}

func TestRunTicksUntilCancelled(t *testing.T) {
	engine := &fakeEngine{cycled: make(chan struct{}, 1)}
	s, err := New(engine, 5*time.Millisecond, WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for range 3 {
		select {
		case <-engine.cycled:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not tick")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
