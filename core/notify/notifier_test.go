package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/events"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/notify"
	infmqtt "github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/mqtt"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/fixture"
)

func result() model.SchedulingResult {
	next := fixture.Day.AddDate(0, 0, 1).Add(9 * time.Hour)
	return model.SchedulingResult{Assignments: []model.OptimizedAssignment{
		{JobID: "J2", LeadID: "T1", Start: fixture.At(13, 0), End: fixture.At(15, 0), PreviousJobID: "J1", EstimatedTravelMinutes: 12},
		{JobID: "J1", LeadID: "T1", AssistantID: "T2", Start: fixture.At(9, 0), End: fixture.At(11, 0)},
		{JobID: "J3", LeadID: "T3", Start: next, End: next.Add(2 * time.Hour)},
	}}
}

func TestSchedulesGroupByMemberAndDate(t *testing.T) {
	jobs := []model.Job{{ID: "J1", CustomerID: "C1", Location: fixture.Boston}}
	got := notify.Schedules(result(), jobs...)
	require.Len(t, got, 3)

	assert.Equal(t, "T1", got[0].TeamID)
	assert.Equal(t, "2025-03-10", got[0].Date)
	require.Len(t, got[0].Jobs, 2)
	assert.Equal(t, "J1", got[0].Jobs[0].JobID)
	assert.Equal(t, "C1", got[0].Jobs[0].CustomerID)
	assert.Equal(t, fixture.Boston, got[0].Jobs[0].Location)
	assert.Equal(t, "J2", got[0].Jobs[1].JobID)
	assert.Equal(t, 12, got[0].Jobs[1].TravelMinutes)

	assert.Equal(t, "T2", got[1].TeamID)
	require.Len(t, got[1].Jobs, 1)
	assert.Equal(t, model.RoleAssistant, got[1].Jobs[0].Role)

	assert.Equal(t, "T3", got[2].TeamID)
	assert.Equal(t, "2025-03-11", got[2].Date)
}

func TestNotifyReport(t *testing.T) {
	pub := infmqtt.NewMockPublisher()
	pub.Decline["T2"] = true
	pub.FailIDs["T3"] = true
	bus := eventbus.New(eventbus.WithBuffer(16))
	ch := bus.Subscribe()

	rep, err := notify.New(pub, notify.WithEventBus(bus)).Notify(context.Background(), result())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, 1, rep.Acknowledged)
	require.Len(t, rep.Deliveries, 3)
	assert.True(t, rep.Deliveries[0].Acknowledged)
	assert.False(t, rep.Deliveries[1].Acknowledged)
	assert.Empty(t, rep.Deliveries[1].Err)
	assert.NotEmpty(t, rep.Deliveries[2].Err)
	assert.Len(t, rep.Unacknowledged(), 2)

	seen := map[string]events.NotificationEvent{}
	for i := 0; i < 3; i++ {
		select {
		case ev := <-ch:
			ne := ev.(events.NotificationEvent)
			seen[ne.TeamID] = ne
		case <-time.After(time.Second):
			t.Fatal("missing notification event")
		}
	}
	assert.True(t, seen["T1"].Acknowledged)
	assert.False(t, seen["T2"].Acknowledged)
	assert.Error(t, seen["T3"].Err)
}

func TestNotifyRetriesTimeouts(t *testing.T) {
	pub := infmqtt.NewMockPublisher()
	pub.Silent["T3"] = true
	pub.Decline["T2"] = true

	rep, err := notify.New(pub, notify.WithRetries(2), notify.WithAckTimeout(time.Millisecond)).Notify(context.Background(), result())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deliveries[0].Attempts)
	assert.Equal(t, 1, rep.Deliveries[1].Attempts)
	assert.Equal(t, 3, rep.Deliveries[2].Attempts)
	assert.Contains(t, rep.Deliveries[2].Err, "timeout")
}

func TestNotifyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub := infmqtt.NewMockPublisher()
	rep, err := notify.New(pub).Notify(ctx, result())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rep.Sent)
	assert.Zero(t, pub.Sent())
}

func TestForwardHistory(t *testing.T) {
	pub := infmqtt.NewMockPublisher()
	stream := make(chan model.ConflictResolutionHistory, 2)
	stream <- model.ConflictResolutionHistory{ID: "H1"}
	stream <- model.ConflictResolutionHistory{ID: "H2"}
	close(stream)

	require.NoError(t, notify.ForwardHistory(context.Background(), stream, pub, nil))
	require.Len(t, pub.History, 2)
	assert.Equal(t, "H2", pub.History[1].ID)
}

func TestForwardHistoryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- notify.ForwardHistory(ctx, make(chan model.ConflictResolutionHistory), infmqtt.NewMockPublisher(), nil)
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
}
