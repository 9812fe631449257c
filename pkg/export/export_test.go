package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/fixture"
)

func byDate() map[string][]model.OptimizedAssignment {
	next := fixture.Day.AddDate(0, 0, 1)
	return map[string][]model.OptimizedAssignment{
		"2025-03-11": {{JobID: "J3", LeadID: "T2", Start: next.Add(9 * time.Hour), End: next.Add(10 * time.Hour)}},
		"2025-03-10": {
			{JobID: "J2", LeadID: "T1", Start: fixture.At(13, 0), End: fixture.At(14, 0), PreviousJobID: "J1", EstimatedTravelDistance: 2.5, EstimatedTravelMinutes: 5, EfficiencyScore: 0.5},
			{JobID: "J1", LeadID: "T1", AssistantID: "T3", Start: fixture.At(9, 0), End: fixture.At(11, 0)},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, byDate()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"2025-03-10", "J1", "T1", "T3"}, rows[1][:4])
	assert.Equal(t, "J2", rows[2][1])
	assert.Equal(t, "2.50", rows[2][7])
	assert.Equal(t, "5", rows[2][8])
	assert.Equal(t, "0.500", rows[2][9])
	assert.Equal(t, "2025-03-11", rows[3][0])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, byDate()))

	var got map[string][]model.OptimizedAssignment
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Len(t, got["2025-03-10"], 2)
	assert.Equal(t, "J3", got["2025-03-11"][0].JobID)
}
