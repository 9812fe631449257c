package config

import (
	"fmt"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// SchedulingConfig holds the defaults applied to requests that leave a
// constraint or preference unset.
type SchedulingConfig struct {
	SpeedMPH    float64           `json:"speed_mph"`
	Constraints model.Constraints `json:"constraints"`
	Preferences model.Preferences `json:"preferences"`
}

func (c *SchedulingConfig) SetDefaults() {
	if c.SpeedMPH <= 0 {
		c.SpeedMPH = geo.DefaultSpeedMPH
	}
}

func (c SchedulingConfig) Validate() error {
	if err := c.Constraints.Validate(); err != nil {
		return fmt.Errorf("scheduling: %w", err)
	}
	if err := c.Preferences.Validate(); err != nil {
		return fmt.Errorf("scheduling: %w", err)
	}
	return nil
}

// Apply copies the configured defaults into the zero fields of req.
func (c SchedulingConfig) Apply(req *model.SchedulingRequest) {
	rc, dc := &req.Constraints, c.Constraints
	if rc.MaxJobsPerDay == 0 {
		rc.MaxJobsPerDay = dc.MaxJobsPerDay
	}
	if rc.MaxTravelDistance == 0 {
		rc.MaxTravelDistance = dc.MaxTravelDistance
	}
	if rc.BufferMinutes == 0 {
		rc.BufferMinutes = dc.BufferMinutes
	}
	if rc.WorkingHours.IsZero() {
		rc.WorkingHours = dc.WorkingHours
	}
	rp, dp := &req.Preferences, c.Preferences
	if rp.Goal == "" {
		rp.Goal = dp.Goal
	}
	if rp.ClusterRadiusMiles == 0 {
		rp.ClusterRadiusMiles = dp.ClusterRadiusMiles
	}
}
