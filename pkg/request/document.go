package request

import (
	"fmt"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Document is the file form of a scheduling request. Times without an offset
// are read in Timezone.
type Document struct {
	Timezone            string                      `json:"timezone" validate:"omitempty,timezone"`
	AsOf                string                      `json:"as_of"`
	Jobs                []JobDoc                    `json:"jobs" validate:"required,min=1,unique=ID,dive"`
	Teams               []TeamDoc                   `json:"teams" validate:"required,min=1,unique=ID,dive"`
	Constraints         model.Constraints           `json:"constraints"`
	Preferences         model.Preferences           `json:"preferences"`
	ExistingAssignments []model.OptimizedAssignment `json:"existing_assignments" validate:"-"`
}

// Point is a latitude and longitude pair.
type Point struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

func (p *Point) coordinate() *model.Coordinate {
	if p == nil {
		return nil
	}
	return &model.Coordinate{Lat: p.Lat, Lng: p.Lng}
}

type JobDoc struct {
	ID                      string   `json:"id" validate:"required"`
	CustomerID              string   `json:"customer_id"`
	Address                 string   `json:"address"`
	Region                  string   `json:"region"`
	Location                *Point   `json:"location"`
	Start                   string   `json:"start" validate:"required"`
	DurationMinutes         int      `json:"duration_minutes" validate:"gt=0"`
	Priority                string   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	RequiredSpecializations []string `json:"required_specializations" validate:"dive,required"`
	RequiresAssistant       bool     `json:"requires_assistant"`
	Deadline                string   `json:"deadline"`
	LeadID                  string   `json:"lead_id"`
	AssistantID             string   `json:"assistant_id" validate:"omitempty,nefield=LeadID"`
}

type WindowDoc struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type TeamDoc struct {
	ID              string      `json:"id" validate:"required"`
	Name            string      `json:"name"`
	Role            string      `json:"role" validate:"omitempty,oneof=lead assistant"`
	Region          string      `json:"region"`
	Home            *Point      `json:"home"`
	CapacityPerDay  int         `json:"capacity_per_day" validate:"gte=0"`
	Specializations []string    `json:"specializations" validate:"dive,required"`
	Availability    []WindowDoc `json:"availability" validate:"dive"`
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(field, s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, model.Invalid(field, "cannot parse time %q", s)
}

// Request converts the document into a model request. It does not run the
// model validation.
func (d Document) Request() (model.SchedulingRequest, error) {
	loc := time.UTC
	if d.Timezone != "" {
		l, err := time.LoadLocation(d.Timezone)
		if err != nil {
			return model.SchedulingRequest{}, model.Invalid("timezone", "%v", err)
		}
		loc = l
	}
	req := model.SchedulingRequest{
		Constraints:         d.Constraints,
		Preferences:         d.Preferences,
		ExistingAssignments: d.ExistingAssignments,
	}
	if d.AsOf != "" {
		t, err := parseTime("as_of", d.AsOf, loc)
		if err != nil {
			return req, err
		}
		req.AsOf = t
	}
	for _, jd := range d.Jobs {
		j, err := jd.job(loc)
		if err != nil {
			return req, err
		}
		req.Jobs = append(req.Jobs, j)
	}
	for _, td := range d.Teams {
		t, err := td.member(loc)
		if err != nil {
			return req, err
		}
		req.Teams = append(req.Teams, t)
	}
	return req, nil
}

func (jd JobDoc) job(loc *time.Location) (model.Job, error) {
	start, err := parseTime(fmt.Sprintf("jobs.%s.start", jd.ID), jd.Start, loc)
	if err != nil {
		return model.Job{}, err
	}
	priority := model.Priority(jd.Priority)
	if priority == "" {
		priority = model.PriorityMedium
	}
	j := model.Job{
		ID:                      jd.ID,
		CustomerID:              jd.CustomerID,
		Address:                 jd.Address,
		Region:                  jd.Region,
		Location:                jd.Location.coordinate(),
		ScheduledStart:          start,
		DurationMinutes:         jd.DurationMinutes,
		Priority:                priority,
		RequiredSpecializations: jd.RequiredSpecializations,
		RequiresAssistant:       jd.RequiresAssistant,
		LeadID:                  jd.LeadID,
		AssistantID:             jd.AssistantID,
	}
	if jd.Deadline != "" {
		dl, err := parseTime(fmt.Sprintf("jobs.%s.deadline", jd.ID), jd.Deadline, loc)
		if err != nil {
			return model.Job{}, err
		}
		j.Deadline = &dl
	}
	return j, nil
}

func (td TeamDoc) member(loc *time.Location) (model.TeamMember, error) {
	m := model.TeamMember{
		ID:              td.ID,
		Name:            td.Name,
		Role:            model.Role(td.Role),
		Region:          td.Region,
		Home:            td.Home.coordinate(),
		CapacityPerDay:  td.CapacityPerDay,
		Specializations: td.Specializations,
	}
	for i, w := range td.Availability {
		field := fmt.Sprintf("teams.%s.availability[%d]", td.ID, i)
		start, err := parseTime(field, w.Start, loc)
		if err != nil {
			return m, err
		}
		end, err := parseTime(field, w.End, loc)
		if err != nil {
			return m, err
		}
		m.Availability = append(m.Availability, model.TimeWindow{Start: start, End: end})
	}
	return m, nil
}
