package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewCoordinate returns a validated coordinate.
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate rejects NaN and out-of-range latitude or longitude.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("coordinate contains NaN")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %.6f out of range", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %.6f out of range", c.Lng)
	}
	return nil
}

// Score is a normalized value in the closed interval [0,1].
type Score float64

// NewScore returns v as a Score or an error when v is NaN or outside [0,1].
func NewScore(v float64) (Score, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("score %v out of range [0,1]", v)
	}
	return Score(v), nil
}

// MustScore is NewScore for values already known to be in range.
func MustScore(v float64) Score {
	s, err := NewScore(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Float returns the score as a float64.
func (s Score) Float() float64 { return float64(s) }

// UnmarshalJSON rejects out-of-range scores.
func (s *Score) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	sc, err := NewScore(v)
	if err != nil {
		return err
	}
	*s = sc
	return nil
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that the window is not inverted.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window bounds are required")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("window end %s must be after start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// Overlaps reports whether both windows share at least one instant.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether o lies entirely within w.
func (w TimeWindow) Contains(o TimeWindow) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

// DateKey formats t as the calendar date used to bucket schedules.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
