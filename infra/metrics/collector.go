package metrics

import (
	"context"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/events"
	coremetrics "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records conflict,
// resolution and notification events on sink. Optimization passes are
// recorded by the scheduler itself and are skipped here. It stops when the
// context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				collect(sink, ev, time.Now())
			}
		}
	}()
}

func collect(sink coremetrics.MetricsSink, ev eventbus.Event, now time.Time) {
	switch e := ev.(type) {
	case events.ConflictEvent:
		if r, ok := sink.(coremetrics.ConflictRecorder); ok {
			_ = r.RecordConflict(coremetrics.ConflictRecord{
				Type:           e.Conflict.Type,
				Severity:       e.Conflict.Severity,
				Date:           e.Conflict.Date,
				AutoResolvable: e.Conflict.AutoResolvable,
				Time:           now,
			})
		}
	case events.ResolutionEvent:
		if r, ok := sink.(coremetrics.ResolutionRecorder); ok {
			_ = r.RecordResolution(coremetrics.ResolutionRecord{
				Action:       e.Action,
				ConflictType: e.ConflictType,
				Strategy:     e.Strategy,
				Failed:       e.Err != nil || e.Action == events.ActionFailed,
				Time:         now,
			})
		}
	case events.NotificationEvent:
		if r, ok := sink.(coremetrics.NotificationRecorder); ok {
			errStr := ""
			if e.Err != nil {
				errStr = e.Err.Error()
			}
			_ = r.RecordNotification(coremetrics.NotificationRecord{
				TeamID:       e.TeamID,
				Date:         e.Date,
				Jobs:         e.Jobs,
				Acknowledged: e.Acknowledged,
				Latency:      e.Latency,
				Error:        errStr,
				Time:         now,
			})
		}
	}
}
