// Package notify sends each team member its day schedule over MQTT and
// forwards resolution history to subscribers.
package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/events"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/logger"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/mqtt"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
)

const DefaultAckTimeout = 5 * time.Second

// Delivery is the outcome of one schedule sent to a member.
type Delivery struct {
	TeamID       string        `json:"team_id"`
	Date         string        `json:"date"`
	Jobs         int           `json:"jobs"`
	CommandID    string        `json:"command_id,omitempty"`
	Acknowledged bool          `json:"acknowledged"`
	Attempts     int           `json:"attempts"`
	Latency      time.Duration `json:"latency"`
	Err          string        `json:"error,omitempty"`
}

// Report summarizes a notification round.
type Report struct {
	Sent         int        `json:"sent"`
	Acknowledged int        `json:"acknowledged"`
	Deliveries   []Delivery `json:"deliveries"`
}

// Unacknowledged returns the deliveries that were not acknowledged.
func (r Report) Unacknowledged() []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries {
		if !d.Acknowledged {
			out = append(out, d)
		}
	}
	return out
}

// Notifier publishes schedules through a Publisher.
type Notifier struct {
	pub        mqtt.Publisher
	bus        eventbus.EventBus
	log        logger.Logger
	ackTimeout time.Duration
	retries    int
}

// Option customizes a Notifier.
type Option func(*Notifier)

func WithEventBus(bus eventbus.EventBus) Option { return func(n *Notifier) { n.bus = bus } }
func WithLogger(l logger.Logger) Option         { return func(n *Notifier) { n.log = l } }

// WithAckTimeout sets how long to wait for each acknowledgment.
func WithAckTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.ackTimeout = d
		}
	}
}

// WithRetries resends schedules that were not acknowledged up to n more times.
// Declined schedules are not resent.
func WithRetries(n int) Option {
	return func(nt *Notifier) {
		if n >= 0 {
			nt.retries = n
		}
	}
}

// New returns a Notifier sending through pub.
func New(pub mqtt.Publisher, opts ...Option) *Notifier {
	n := &Notifier{pub: pub, log: logger.NopLogger{}, ackTimeout: DefaultAckTimeout}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Schedules groups the assignments of result by member and date. The lead
// and the assistant of a job both receive it. jobs, when given, add the
// customer and location of each job.
func Schedules(result model.SchedulingResult, jobs ...model.Job) []mqtt.Schedule {
	byID := make(map[string]model.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	as := make([]model.OptimizedAssignment, len(result.Assignments))
	copy(as, result.Assignments)
	model.SortAssignments(as)

	index := map[string]int{}
	var out []mqtt.Schedule
	add := func(team, date string, sj mqtt.ScheduledJob) {
		key := team + "|" + date
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, mqtt.Schedule{TeamID: team, Date: date})
		}
		out[i].Jobs = append(out[i].Jobs, sj)
	}
	for _, a := range as {
		sj := mqtt.ScheduledJob{
			JobID:         a.JobID,
			Role:          model.RoleLead,
			Start:         a.Start,
			End:           a.End,
			PreviousJobID: a.PreviousJobID,
			TravelMinutes: a.EstimatedTravelMinutes,
		}
		if j, ok := byID[a.JobID]; ok {
			sj.CustomerID = j.CustomerID
			sj.Location = j.Location
		}
		add(a.LeadID, a.Date(), sj)
		if a.AssistantID != "" {
			sj.Role = model.RoleAssistant
			sj.PreviousJobID = ""
			sj.TravelMinutes = 0
			add(a.AssistantID, a.Date(), sj)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeamID != out[j].TeamID {
			return out[i].TeamID < out[j].TeamID
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// Notify sends every member its day schedules concurrently and waits for the
// acknowledgments. Per-member failures are reported in the Report; the error
// is only set when ctx is done before the round completes.
func (n *Notifier) Notify(ctx context.Context, result model.SchedulingResult, jobs ...model.Job) (Report, error) {
	schedules := Schedules(result, jobs...)
	deliveries := make([]Delivery, len(schedules))
	pending := make([]int, len(schedules))
	for i := range pending {
		pending[i] = i
	}

	for round := 0; round <= n.retries && len(pending) > 0; round++ {
		if err := ctx.Err(); err != nil {
			return n.report(deliveries), err
		}
		var wg sync.WaitGroup
		for _, i := range pending {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				deliveries[i] = n.deliver(ctx, schedules[i], deliveries[i].Attempts+1)
			}(i)
		}
		wg.Wait()

		var next []int
		for _, i := range pending {
			if d := deliveries[i]; !d.Acknowledged && d.Err != "" {
				next = append(next, i)
			}
		}
		pending = next
	}
	rep := n.report(deliveries)
	n.log.Infof("notified %d schedules, %d acknowledged", rep.Sent, rep.Acknowledged)
	return rep, ctx.Err()
}

func (n *Notifier) deliver(ctx context.Context, s mqtt.Schedule, attempt int) Delivery {
	d := Delivery{TeamID: s.TeamID, Date: s.Date, Jobs: len(s.Jobs), Attempts: attempt}
	start := time.Now()
	var err error
	if err = ctx.Err(); err == nil {
		d.CommandID, err = n.pub.SendSchedule(s)
		if err == nil {
			d.Acknowledged, err = n.pub.WaitForAck(d.CommandID, n.ackTimeout)
		}
	}
	d.Latency = time.Since(start)
	if err != nil {
		d.Err = err.Error()
		n.log.Warnf("schedule for %s on %s: %v", s.TeamID, s.Date, err)
	} else if !d.Acknowledged {
		n.log.Warnf("schedule for %s on %s declined", s.TeamID, s.Date)
	}
	if n.bus != nil {
		n.bus.Publish(events.NotificationEvent{
			TeamID:       s.TeamID,
			Date:         s.Date,
			Jobs:         len(s.Jobs),
			Acknowledged: d.Acknowledged,
			Err:          err,
			Latency:      d.Latency,
		})
	}
	return d
}

func (n *Notifier) report(ds []Delivery) Report {
	rep := Report{Deliveries: ds}
	for _, d := range ds {
		if d.CommandID != "" {
			rep.Sent++
		}
		if d.Acknowledged {
			rep.Acknowledged++
		}
	}
	return rep
}

// ForwardHistory publishes every entry received on stream until ctx is done
// or stream is closed. Publish errors are logged and do not stop forwarding.
func ForwardHistory(ctx context.Context, stream <-chan model.ConflictResolutionHistory, pub mqtt.Publisher, log logger.Logger) error {
	if log == nil {
		log = logger.NopLogger{}
	}
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case h, ok := <-stream:
			if !ok {
				return nil
			}
			if err := pub.PublishHistory(h); err != nil {
				log.Errorf("forward history %s: %v", h.ID, err)
				continue
			}
			log.Debugf("forwarded history %s (%s)", h.ID, h.Outcome)
		}
	}
}
