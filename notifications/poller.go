package notifications

import (
	"context"
	"time"

	"skyweb/models"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const DefaultPollInterval = 30 * time.Second

// UnreadCounter reports the viewer's unread notification count
type UnreadCounter interface {
	UnreadCount(ctx context.Context) (int64, error)
}

// UnreadPoller publishes an UnreadCountEvent whenever the count changes
type UnreadPoller struct {
	counter   UnreadCounter
	publisher Publisher
	interval  time.Duration

	known atomic.Bool
	last  atomic.Int64
}

func NewUnreadPoller(counter UnreadCounter, publisher Publisher, interval time.Duration) *UnreadPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &UnreadPoller{
		counter:   counter,
		publisher: publisher,
		interval:  interval,
	}
}

// Last returns the most recent count, false before the first successful poll
func (p *UnreadPoller) Last() (int64, bool) {
	if !p.known.Load() {
		return 0, false
	}
	return p.last.Load(), true
}

// Run polls until ctx is done. Failed polls are logged and retried on the
// next tick.
func (p *UnreadPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *UnreadPoller) poll(ctx context.Context) {
	count, err := p.counter.UnreadCount(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Warn("Failed to poll unread notifications")
		}
		return
	}

	if p.known.Load() && p.last.Load() == count {
		return
	}
	p.last.Store(count)
	p.known.Store(true)

	delivered := p.publisher.Publish(models.UnreadCountEvent{Count: count})
	log.WithFields(log.Fields{
		"count":     count,
		"delivered": delivered,
	}).Debug("Unread count changed")
}
