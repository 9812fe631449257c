// Package scenarios replays scheduling scenarios described in YAML files.
package scenarios

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/resolution"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/pkg/request"
)

// ConflictDef describes a conflict the scenario expects.
type ConflictDef struct {
	Type     string   `yaml:"type"`
	Severity string   `yaml:"severity,omitempty"`
	Jobs     []string `yaml:"jobs,omitempty"`
	Auto     *bool    `yaml:"auto_resolvable,omitempty"`
}

// TargetDef places a job by hand in a resolve step.
type TargetDef struct {
	JobID  string `yaml:"job_id"`
	LeadID string `yaml:"lead_id"`
}

// Step is an action taken on the current session after optimization.
type Step struct {
	// Action is resolve, reject or revert.
	Action   string     `yaml:"action"`
	Conflict int        `yaml:"conflict,omitempty"`
	Strategy string     `yaml:"strategy,omitempty"`
	Target   *TargetDef `yaml:"target,omitempty"`
	// Revert undoes the history entry created by the step with this index.
	Revert int `yaml:"revert,omitempty"`

	Outcome     string            `yaml:"outcome,omitempty"`
	Error       string            `yaml:"error,omitempty"`
	Conflicts   *int              `yaml:"conflicts,omitempty"`
	Version     int               `yaml:"version,omitempty"`
	Assignments map[string]string `yaml:"assignments,omitempty"`
}

func (s Step) options() []resolution.Option {
	var opts []resolution.Option
	if s.Strategy != "" {
		opts = append(opts, resolution.WithStrategy(model.ResolutionStrategy(s.Strategy)))
	}
	if s.Target != nil {
		opts = append(opts, resolution.WithTarget(resolution.ManualTarget{JobID: s.Target.JobID, LeadID: s.Target.LeadID}))
	}
	return opts
}

type Expected struct {
	Assigned    int               `yaml:"assigned"`
	Unassigned  []string          `yaml:"unassigned,omitempty"`
	Assignments map[string]string `yaml:"assignments,omitempty"`
	// Previous maps a job to the job its lead works right before it.
	Previous    map[string]string `yaml:"previous,omitempty"`
	Conflicts   []ConflictDef     `yaml:"conflicts,omitempty"`
	Utilization *float64          `yaml:"utilization,omitempty"`
	Sent        int               `yaml:"sent"`
	Acked       int               `yaml:"acked"`
}

type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Request     yaml.Node `yaml:"request"`
	Steps       []Step    `yaml:"steps,omitempty"`
	// Decline, Silent and FailTeams drive the mock publisher.
	Decline   []string `yaml:"decline,omitempty"`
	Silent    []string `yaml:"silent,omitempty"`
	FailTeams []string `yaml:"fail_teams,omitempty"`
	Expected  Expected `yaml:"expected"`

	req model.SchedulingRequest
}

// SchedulingRequest returns the decoded request of the scenario.
func (sc *Scenario) SchedulingRequest() model.SchedulingRequest { return sc.req }

// Load reads a scenario and decodes its request with the request package.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario has no name", path)
	}
	if sc.Request.Kind == 0 {
		return nil, fmt.Errorf("%s: scenario has no request", path)
	}
	raw, err := yaml.Marshal(&sc.Request)
	if err != nil {
		return nil, err
	}
	if sc.req, err = request.Decode(bytes.NewReader(raw), "yaml"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, st := range sc.Steps {
		switch st.Action {
		case "resolve", "reject":
		case "revert":
			if st.Revert < 0 || st.Revert >= i || sc.Steps[st.Revert].Action != "resolve" {
				return nil, fmt.Errorf("%s: step %d reverts step %d which is not an earlier resolve", path, i, st.Revert)
			}
		default:
			return nil, fmt.Errorf("%s: step %d: unknown action %q", path, i, st.Action)
		}
	}
	return &sc, nil
}
