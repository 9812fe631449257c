package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/events"
	coremetrics "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
)

type captureSink struct {
	coremetrics.NopSink
	mu            sync.Mutex
	conflicts     []coremetrics.ConflictRecord
	resolutions   []coremetrics.ResolutionRecord
	notifications []coremetrics.NotificationRecord
}

func (c *captureSink) RecordConflict(r coremetrics.ConflictRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conflicts = append(c.conflicts, r)
	return nil
}

func (c *captureSink) RecordResolution(r coremetrics.ResolutionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolutions = append(c.resolutions, r)
	return nil
}

func (c *captureSink) RecordNotification(r coremetrics.NotificationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, r)
	return nil
}

func (c *captureSink) counts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conflicts), len(c.resolutions), len(c.notifications)
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	// Subscription happens synchronously; publish right away.
	bus.Publish(events.OptimizationEvent{Assigned: 2})
	bus.Publish(events.ConflictEvent{Conflict: model.SchedulingConflict{Type: model.ConflictDoubleBooking, Severity: model.SeverityCritical}})
	bus.Publish(events.ResolutionEvent{Action: events.ActionFailed, Strategy: model.StrategyReassign})
	bus.Publish(events.NotificationEvent{TeamID: "T1", Err: errors.New("timeout")})

	require.Eventually(t, func() bool {
		c, r, n := sink.counts()
		return c == 1 && r == 1 && n == 1
	}, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, model.SeverityCritical, sink.conflicts[0].Severity)
	assert.True(t, sink.resolutions[0].Failed)
	assert.Equal(t, "timeout", sink.notifications[0].Error)
}

func TestStartEventCollector_NilArgs(t *testing.T) {
	assert.NotPanics(t, func() {
		StartEventCollector(context.Background(), nil, coremetrics.NopSink{})
		StartEventCollector(context.Background(), eventbus.New(), nil)
	})
}
