// Package export writes schedules for downstream tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// WriteJSON writes the schedule grouped by date in JSON format.
func WriteJSON(w io.Writer, byDate map[string][]model.OptimizedAssignment) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(byDate)
}

var csvHeader = []string{
	"date", "job_id", "lead_id", "assistant_id", "start", "end",
	"previous_job_id", "travel_miles", "travel_minutes", "efficiency", "workload",
}

// WriteCSV writes one row per assignment ordered by date then start.
func WriteCSV(w io.Writer, byDate map[string][]model.OptimizedAssignment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		as := append([]model.OptimizedAssignment(nil), byDate[d]...)
		model.SortAssignments(as)
		for _, a := range as {
			rec := []string{
				d,
				a.JobID,
				a.LeadID,
				a.AssistantID,
				a.Start.Format(time.RFC3339),
				a.End.Format(time.RFC3339),
				a.PreviousJobID,
				strconv.FormatFloat(a.EstimatedTravelDistance, 'f', 2, 64),
				strconv.Itoa(a.EstimatedTravelMinutes),
				strconv.FormatFloat(a.EfficiencyScore.Float(), 'f', 3, 64),
				strconv.FormatFloat(a.WorkloadScore.Float(), 'f', 3, 64),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
