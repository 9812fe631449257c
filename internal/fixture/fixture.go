// Package fixture builds the reference scheduling requests shared by tests.
package fixture

import (
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Day is the planning date of every reference request.
var Day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// At returns h:m on Day.
func At(h, m int) time.Time {
	return Day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

// Coord returns a pointer to a coordinate.
func Coord(lat, lng float64) *model.Coordinate {
	return &model.Coordinate{Lat: lat, Lng: lng}
}

var (
	// Boston is the home base of region A.
	Boston = Coord(42.3601, -71.0589)
	// NYC is the home base of region B, about 190 miles from Boston.
	NYC = Coord(40.7128, -74.0060)
)

// Constraints used by the reference scenarios.
func Constraints() model.Constraints {
	return model.Constraints{
		MaxTravelDistance: 50,
		BufferMinutes:     30,
		WorkingHours:      model.WorkingHours{Start: "08:00", End: "18:00"},
	}
}

// Job returns a two hour job starting at h:00 on Day.
func Job(id string, p model.Priority, region string, loc *model.Coordinate, h int) model.Job {
	return model.Job{
		ID:              id,
		CustomerID:      "cust-" + id,
		Region:          region,
		Location:        loc,
		ScheduledStart:  At(h, 0),
		DurationMinutes: 120,
		Priority:        p,
	}
}

// Reference returns the three job, two team scenario: J1 (high) and J2
// (medium) in region A, J3 (low) in region B, T1 in A with capacity t1Cap and
// T2 in B with capacity 1.
func Reference(t1Cap int) model.SchedulingRequest {
	return model.SchedulingRequest{
		Jobs: []model.Job{
			Job("J1", model.PriorityHigh, "A", Coord(42.37, -71.05), 9),
			Job("J2", model.PriorityMedium, "A", Coord(42.35, -71.08), 13),
			Job("J3", model.PriorityLow, "B", Coord(40.73, -73.99), 9),
		},
		Teams: []model.TeamMember{
			{ID: "T1", Name: "Team One", Role: model.RoleLead, Region: "A", Home: Boston, CapacityPerDay: t1Cap},
			{ID: "T2", Name: "Team Two", Role: model.RoleLead, Region: "B", Home: NYC, CapacityPerDay: 1},
		},
		Constraints: Constraints(),
	}
}

// DoubleBooked returns the reference request with J1 and J2 pre-assigned to
// T1 at overlapping times.
func DoubleBooked() model.SchedulingRequest {
	req := Reference(2)
	req.Jobs[1].ScheduledStart = At(10, 0)
	req.ExistingAssignments = []model.OptimizedAssignment{
		{JobID: "J1", LeadID: "T1", Start: req.Jobs[0].ScheduledStart, End: req.Jobs[0].End(), BufferMinutes: 30},
		{JobID: "J2", LeadID: "T1", Start: req.Jobs[1].ScheduledStart, End: req.Jobs[1].End(), BufferMinutes: 30},
	}
	return req
}

// DoubleBookedWithSpare adds T3, a free lead in region A, to DoubleBooked so
// the double booking can be resolved by reassignment.
func DoubleBookedWithSpare() model.SchedulingRequest {
	req := DoubleBooked()
	req.Teams = append(req.Teams, model.TeamMember{
		ID: "T3", Name: "Team Three", Role: model.RoleLead, Region: "A", Home: Boston, CapacityPerDay: 2,
	})
	return req
}
