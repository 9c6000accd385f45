package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"skyweb/models"
	"skyweb/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCounter returns the scripted results in order, repeating the last one
type scriptedCounter struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	count int64
	err   error
}

func (s *scriptedCounter) UnreadCount(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r.count, r.err
}

func (s *scriptedCounter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Publish(event models.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return 1
}

func (r *recorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

func TestUnreadPollerPublishesChanges(t *testing.T) {
	counter := &scriptedCounter{results: []result{
		{count: 1},
		{count: 1},
		{err: errors.New("network down")},
		{count: 4},
		{count: 4},
	}}
	rec := &recorder{}
	poller := notifications.NewUnreadPoller(counter, rec, time.Millisecond)

	_, known := poller.Last()
	assert.False(t, known)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	require.Eventually(t, func() bool { return counter.Calls() >= 6 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []models.Event{
		models.UnreadCountEvent{Count: 1},
		models.UnreadCountEvent{Count: 4},
	}, rec.Events())

	last, known := poller.Last()
	assert.True(t, known)
	assert.Equal(t, int64(4), last)
}

func TestUnreadPollerFeedsHub(t *testing.T) {
	hub := notifications.NewHub()
	events := hub.Subscribe("client", 1)
	defer hub.Shutdown()

	counter := &scriptedCounter{results: []result{{count: 7}}}
	poller := notifications.NewUnreadPoller(counter, hub, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	select {
	case event := <-events:
		assert.Equal(t, models.UnreadCountEvent{Count: 7}, event)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	require.NoError(t, <-done)
}
