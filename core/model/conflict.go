package model

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"
)

// ConflictType is the rule a conflict violates.
type ConflictType string

const (
	ConflictDoubleBooking           ConflictType = "double_booking"
	ConflictOverloadedTeam          ConflictType = "overloaded_team"
	ConflictUnavailableTeam         ConflictType = "unavailable_team"
	ConflictTravelDistanceViolation ConflictType = "travel_distance_violation"
	ConflictSpecializationMismatch  ConflictType = "specialization_mismatch"
)

func (t ConflictType) Valid() bool {
	switch t {
	case ConflictDoubleBooking, ConflictOverloadedTeam, ConflictUnavailableTeam,
		ConflictTravelDistanceViolation, ConflictSpecializationMismatch:
		return true
	}
	return false
}

// Severity of a conflict.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 1 (low) to 4 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

// SchedulingConflict is a rule violation found in an assignment snapshot.
// Conflicts are derived data and recomputed from each snapshot.
type SchedulingConflict struct {
	ID                  string       `json:"id"`
	Type                ConflictType `json:"type"`
	Severity            Severity     `json:"severity"`
	JobIDs              []string     `json:"job_ids"`
	TeamIDs             []string     `json:"team_ids"`
	Date                string       `json:"date"`
	Description         string       `json:"description"`
	AutoResolvable      bool         `json:"auto_resolvable"`
	SuggestedResolution string       `json:"suggested_resolution,omitempty"`
	DetectedAt          time.Time    `json:"detected_at"`
}

// ConflictID derives a stable identifier from the conflict content so the
// same violation keeps its ID across detections.
func ConflictID(t ConflictType, date string, teamIDs, jobIDs []string) string {
	teams := append([]string(nil), teamIDs...)
	jobs := append([]string(nil), jobIDs...)
	sort.Strings(teams)
	sort.Strings(jobs)
	h := fnv.New64a()
	_, _ = h.Write([]byte(string(t) + "|" + date + "|" + strings.Join(teams, ",") + "|" + strings.Join(jobs, ",")))
	return fmt.Sprintf("c-%016x", h.Sum64())
}

// SortConflicts orders by severity descending, then type, date and first job.
func SortConflicts(cs []SchedulingConflict) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return firstOf(a.JobIDs) < firstOf(b.JobIDs)
	})
}

func firstOf(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
