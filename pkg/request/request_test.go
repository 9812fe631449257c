package request

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

func TestLoadFileYAML(t *testing.T) {
	req, err := LoadFile("testdata/reference.yaml")
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	require.Len(t, req.Jobs, 2)
	j1 := req.Jobs[0]
	assert.Equal(t, "C1", j1.CustomerID)
	assert.Equal(t, model.PriorityHigh, j1.Priority)
	assert.True(t, j1.ScheduledStart.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, ny)))
	require.NotNil(t, j1.Location)
	assert.Equal(t, 42.3601, j1.Location.Lat)

	j2 := req.Jobs[1]
	assert.Equal(t, model.PriorityMedium, j2.Priority)
	require.NotNil(t, j2.Deadline)
	assert.True(t, j2.Deadline.Equal(time.Date(2025, 3, 10, 17, 0, 0, 0, ny)))
	assert.Equal(t, []string{"battery"}, j2.RequiredSpecializations)

	require.Len(t, req.Teams, 1)
	assert.Equal(t, model.RoleLead, req.Teams[0].Role)
	require.Len(t, req.Teams[0].Availability, 1)
	assert.Equal(t, 10*time.Hour, req.Teams[0].Availability[0].End.Sub(req.Teams[0].Availability[0].Start))

	assert.Equal(t, 3, req.Constraints.MaxJobsPerDay)
	assert.Equal(t, "08:00", req.Constraints.WorkingHours.Start)
	assert.Equal(t, model.GoalMinimizeTravel, req.Preferences.Goal)
	assert.True(t, req.Preferences.GeographicClustering)
}

func TestDecodeJSON(t *testing.T) {
	doc := `{"as_of":"2025-03-09T00:00:00Z","jobs":[{"id":"J1","start":"2025-03-10T09:00:00Z","duration_minutes":60}],
	"teams":[{"id":"T1","capacity_per_day":1}]}`
	req, err := Decode(strings.NewReader(doc), "json")
	require.NoError(t, err)
	assert.True(t, req.AsOf.Equal(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)))
	assert.True(t, req.Jobs[0].ScheduledStart.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"no jobs", `{"jobs":[],"teams":[{"id":"T1"}]}`, "jobs"},
		{"duration", `{"jobs":[{"id":"J1","start":"2025-03-10 09:00","duration_minutes":0}],"teams":[{"id":"T1"}]}`, "jobs[0].duration_minutes"},
		{"priority", `{"jobs":[{"id":"J1","start":"2025-03-10 09:00","duration_minutes":30,"priority":"asap"}],"teams":[{"id":"T1"}]}`, "jobs[0].priority"},
		{"latitude", `{"jobs":[{"id":"J1","start":"2025-03-10 09:00","duration_minutes":30,"location":{"lat":91,"lng":0}}],"teams":[{"id":"T1"}]}`, "jobs[0].location.lat"},
		{"duplicate team", `{"jobs":[{"id":"J1","start":"2025-03-10 09:00","duration_minutes":30}],"teams":[{"id":"T1"},{"id":"T1"}]}`, "teams"},
		{"assistant is lead", `{"jobs":[{"id":"J1","start":"2025-03-10 09:00","duration_minutes":30,"lead_id":"T1","assistant_id":"T1"}],"teams":[{"id":"T1"}]}`, "jobs[0].assistant_id"},
		{"role", `{"jobs":[{"id":"J1","start":"2025-03-10 09:00","duration_minutes":30}],"teams":[{"id":"T1","role":"boss"}]}`, "teams[0].role"},
		{"timezone", `{"timezone":"Mars/Olympus","jobs":[{"id":"J1","start":"2025-03-10 09:00","duration_minutes":30}],"teams":[{"id":"T1"}]}`, "timezone"},
		{"start", `{"jobs":[{"id":"J1","start":"tomorrow","duration_minutes":30}],"teams":[{"id":"T1"}]}`, "jobs.J1.start"},
		{"unknown field", `{"jobz":[]}`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.doc), "json")
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidRequest), "got %v", err)
			var ire *model.InvalidRequestError
			require.ErrorAs(t, err, &ire)
			assert.Equal(t, tc.field, ire.Field)
		})
	}
}

func TestDecoderDefaultsRunBeforeValidation(t *testing.T) {
	doc := `{"jobs":[{"id":"J1","start":"2025-03-10 09:00","duration_minutes":30}],"teams":[{"id":"T1"}]}`

	_, err := Decode(strings.NewReader(doc), "json")
	var ire *model.InvalidRequestError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, "team.T1.capacity_per_day", ire.Field)

	dec := NewDecoder()
	dec.Defaults = func(r *model.SchedulingRequest) { r.Constraints.MaxJobsPerDay = 4 }
	req, err := dec.Decode(strings.NewReader(doc), "json")
	require.NoError(t, err)
	assert.Equal(t, 4, req.Constraints.CapacityFor(req.Teams[0]))
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	_, err := Decode(strings.NewReader(""), "toml")
	assert.EqualError(t, err, "unsupported format: toml")
}
