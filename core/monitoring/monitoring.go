// Package monitoring defines error reporting. Monitors are injected; there
// is no process-wide instance.
package monitoring

import (
	"errors"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

// Tags builds the tags reported with err for module. Constraint violations
// add the job, team and rule involved.
func Tags(module string, err error) map[string]string {
	tags := map[string]string{"module": module}
	var cve *model.ConstraintViolationError
	if errors.As(err, &cve) {
		tags["job_id"] = cve.JobID
		tags["team_id"] = cve.TeamID
		tags["rule"] = cve.Rule
	}
	return tags
}
