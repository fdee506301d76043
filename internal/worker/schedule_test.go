package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goindexq/internal/config"
)

func TestNextRun(t *testing.T) {
	sched, err := config.ScheduleParser.Parse("*/5 * * * *")
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 10, 2, 30, 0, time.UTC)
	assert.Equal(t, 2*time.Minute+30*time.Second, nextRun(sched, now))
}

func TestSchedule_InvalidExpression(t *testing.T) {
	w := newTestWorker(t, newMemoryStore(0), &fakeBuilder{}, &recordingSink{}, nil, Options{Workers: 1, BatchSize: 1})

	err := w.Schedule(context.Background(), "every five minutes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestSchedule_StopsOnCancel(t *testing.T) {
	w := newTestWorker(t, newMemoryStore(0), &fakeBuilder{}, &recordingSink{}, nil, Options{Workers: 1, BatchSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Schedule(ctx, "0 0 1 1 *") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop after cancellation")
	}
}
