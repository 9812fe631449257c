// Package availability tracks per-member, per-day capacity and the time
// blocks already committed in a planning window.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Interval is a committed block of a member's day.
type Interval struct {
	JobID    string
	Start    time.Time
	End      time.Time
	Location *model.Coordinate
}

// DayCapacity is the state of one member on one date. Remaining may be
// negative when the input is already overloaded.
type DayCapacity struct {
	TeamID    string
	Date      string
	Capacity  int
	Committed int
	Remaining int
	Busy      []Interval
}

// Index holds DayCapacity for every member and date it has seen. It is not
// safe for concurrent use; callers that mutate it work on a Clone.
type Index struct {
	teams       map[string]model.TeamMember
	constraints model.Constraints
	dates       []string
	days        map[string]map[string]*DayCapacity
}

// Dates returns every calendar date touched by window, in order.
func Dates(window model.TimeWindow) []string {
	if window.Start.IsZero() || window.End.Before(window.Start) {
		return nil
	}
	var out []string
	y, m, d := window.Start.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, window.Start.Location())
	for !day.After(window.End) {
		if day.Equal(window.End) && !day.Equal(window.Start) {
			break
		}
		out = append(out, model.DateKey(day))
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// WindowOf returns the smallest window covering every job.
func WindowOf(jobs []model.Job) model.TimeWindow {
	var w model.TimeWindow
	for _, j := range jobs {
		if w.Start.IsZero() || j.ScheduledStart.Before(w.Start) {
			w.Start = j.ScheduledStart
		}
		if w.End.IsZero() || j.End().After(w.End) {
			w.End = j.End()
		}
	}
	return w
}

// Build indexes existing commitments of teams over window. Assignments
// referencing unknown members are ignored here; the conflict detector
// reports them. Jobs resolve interval locations and may be nil.
func Build(teams []model.TeamMember, existing []model.OptimizedAssignment, jobs map[string]model.Job, window model.TimeWindow, c model.Constraints) (*Index, error) {
	if !window.Start.IsZero() && window.End.Before(window.Start) {
		return nil, model.Invalid("window", "end %s before start %s", window.End.Format(time.RFC3339), window.Start.Format(time.RFC3339))
	}
	idx := &Index{
		teams:       make(map[string]model.TeamMember, len(teams)),
		constraints: c,
		dates:       Dates(window),
		days:        make(map[string]map[string]*DayCapacity, len(teams)),
	}
	for _, t := range teams {
		idx.teams[t.ID] = t
		idx.days[t.ID] = make(map[string]*DayCapacity, len(idx.dates))
		for _, d := range idx.dates {
			idx.day(t.ID, d)
		}
	}
	for _, a := range existing {
		var loc *model.Coordinate
		if j, ok := jobs[a.JobID]; ok {
			loc = j.Location
		}
		iv := Interval{JobID: a.JobID, Start: a.Start, End: a.End, Location: loc}
		for _, m := range a.Members() {
			if _, ok := idx.teams[m]; !ok {
				continue
			}
			idx.Reserve(m, iv)
		}
	}
	return idx, nil
}

func (idx *Index) day(teamID, date string) *DayCapacity {
	byDate, ok := idx.days[teamID]
	if !ok {
		return nil
	}
	dc, ok := byDate[date]
	if !ok {
		capacity := idx.constraints.CapacityFor(idx.teams[teamID])
		dc = &DayCapacity{TeamID: teamID, Date: date, Capacity: capacity, Remaining: capacity}
		byDate[date] = dc
	}
	return dc
}

// Day returns a copy of the member's state on date.
func (idx *Index) Day(teamID, date string) (DayCapacity, bool) {
	dc := idx.day(teamID, date)
	if dc == nil {
		return DayCapacity{}, false
	}
	return copyDay(dc), true
}

// Remaining returns the free slots of the member on date.
func (idx *Index) Remaining(teamID, date string) int {
	dc := idx.day(teamID, date)
	if dc == nil {
		return 0
	}
	return dc.Remaining
}

// Load returns the committed jobs of the member on date.
func (idx *Index) Load(teamID, date string) int {
	dc := idx.day(teamID, date)
	if dc == nil {
		return 0
	}
	return dc.Committed
}

// Busy returns the committed intervals of the member on date, by start.
func (idx *Index) Busy(teamID, date string) []Interval {
	dc := idx.day(teamID, date)
	if dc == nil {
		return nil
	}
	return append([]Interval(nil), dc.Busy...)
}

// Reserve commits iv to the member. It does not check capacity.
func (idx *Index) Reserve(teamID string, iv Interval) {
	dc := idx.day(teamID, model.DateKey(iv.Start))
	if dc == nil {
		return
	}
	dc.Committed++
	dc.Remaining = dc.Capacity - dc.Committed
	pos := sort.Search(len(dc.Busy), func(i int) bool { return !dc.Busy[i].Start.Before(iv.Start) })
	for pos < len(dc.Busy) && dc.Busy[pos].Start.Equal(iv.Start) && dc.Busy[pos].JobID < iv.JobID {
		pos++
	}
	dc.Busy = append(dc.Busy, Interval{})
	copy(dc.Busy[pos+1:], dc.Busy[pos:])
	dc.Busy[pos] = iv
}

// Release removes the commitment of jobID from the member on date.
func (idx *Index) Release(teamID, date, jobID string) bool {
	dc := idx.day(teamID, date)
	if dc == nil {
		return false
	}
	for i, iv := range dc.Busy {
		if iv.JobID == jobID {
			dc.Busy = append(dc.Busy[:i], dc.Busy[i+1:]...)
			dc.Committed--
			dc.Remaining = dc.Capacity - dc.Committed
			return true
		}
	}
	return false
}

// Predecessor returns the last committed interval of the member starting
// before at on the same date.
func (idx *Index) Predecessor(teamID string, at time.Time) (Interval, bool) {
	dc := idx.day(teamID, model.DateKey(at))
	if dc == nil {
		return Interval{}, false
	}
	for i := len(dc.Busy) - 1; i >= 0; i-- {
		if dc.Busy[i].Start.Before(at) {
			return dc.Busy[i], true
		}
	}
	return Interval{}, false
}

// Successor returns the first committed interval of the member starting at
// or after at on the same date.
func (idx *Index) Successor(teamID string, at time.Time) (Interval, bool) {
	dc := idx.day(teamID, model.DateKey(at))
	if dc == nil {
		return Interval{}, false
	}
	for _, iv := range dc.Busy {
		if !iv.Start.Before(at) {
			return iv, true
		}
	}
	return Interval{}, false
}

// Member returns the indexed team member.
func (idx *Index) Member(teamID string) (model.TeamMember, bool) {
	t, ok := idx.teams[teamID]
	return t, ok
}

// Dates returns the dates of the planning window.
func (idx *Index) Dates() []string { return append([]string(nil), idx.dates...) }

// TotalSlots sums member capacity over every date of the window.
func (idx *Index) TotalSlots() int {
	total := 0
	for id := range idx.teams {
		total += idx.constraints.CapacityFor(idx.teams[id]) * len(idx.dates)
	}
	return total
}

// ByTeam returns every tracked day grouped by member, each sorted by date.
func (idx *Index) ByTeam() map[string][]DayCapacity {
	out := make(map[string][]DayCapacity, len(idx.days))
	for teamID, byDate := range idx.days {
		days := make([]DayCapacity, 0, len(byDate))
		for _, dc := range byDate {
			days = append(days, copyDay(dc))
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
		out[teamID] = days
	}
	return out
}

// Overloaded returns every day whose commitments exceed capacity, ordered by
// member then date.
func (idx *Index) Overloaded() []DayCapacity {
	var out []DayCapacity
	for _, days := range idx.ByTeam() {
		for _, dc := range days {
			if dc.Remaining < 0 {
				out = append(out, dc)
			}
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

// Clone returns an independent copy of the index.
func (idx *Index) Clone() *Index {
	cp := &Index{
		teams:       idx.teams,
		constraints: idx.constraints,
		dates:       idx.dates,
		days:        make(map[string]map[string]*DayCapacity, len(idx.days)),
	}
	for teamID, byDate := range idx.days {
		m := make(map[string]*DayCapacity, len(byDate))
		for d, dc := range byDate {
			c := copyDay(dc)
			m[d] = &c
		}
		cp.days[teamID] = m
	}
	return cp
}

func copyDay(dc *DayCapacity) DayCapacity {
	c := *dc
	c.Busy = append([]Interval(nil), dc.Busy...)
	return c
}

func (dc DayCapacity) String() string {
	return fmt.Sprintf("%s@%s %d/%d", dc.TeamID, dc.Date, dc.Committed, dc.Capacity)
}
