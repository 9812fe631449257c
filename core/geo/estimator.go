// Package geo estimates travel between geo-coordinates.
package geo

import (
	"math"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

const (
	earthRadiusMiles = 3958.8
	// DefaultSpeedMPH is the average road speed assumed between jobs.
	DefaultSpeedMPH = 30.0
)

// Estimator converts great-circle distance into travel time.
type Estimator struct {
	SpeedMPH float64
}

// NewEstimator returns an estimator using speed, or DefaultSpeedMPH when
// speed is not positive.
func NewEstimator(speed float64) Estimator {
	if speed <= 0 {
		speed = DefaultSpeedMPH
	}
	return Estimator{SpeedMPH: speed}
}

// Miles returns the haversine distance between a and b.
func Miles(a, b model.Coordinate) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMiles * c
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

// DistanceAndTime returns the distance in miles and the travel time in whole
// minutes, rounded up.
func (e Estimator) DistanceAndTime(a, b model.Coordinate) (float64, int, error) {
	if err := a.Validate(); err != nil {
		return 0, 0, model.Invalid("coordinate", "%v", err)
	}
	if err := b.Validate(); err != nil {
		return 0, 0, model.Invalid("coordinate", "%v", err)
	}
	miles := Miles(a, b)
	return miles, e.Minutes(miles), nil
}

// Minutes converts a distance into travel minutes.
func (e Estimator) Minutes(miles float64) int {
	speed := e.SpeedMPH
	if speed <= 0 {
		speed = DefaultSpeedMPH
	}
	// Round away float noise before ceil so 15.0000001 stays 15.
	return int(math.Ceil(math.Round(miles/speed*60*1e6) / 1e6))
}

// Between is DistanceAndTime for optional coordinates. A nil side yields a
// MissingCoordinateError for jobID.
func (e Estimator) Between(jobID string, a, b *model.Coordinate) (float64, int, error) {
	if a == nil || b == nil {
		return 0, 0, &model.MissingCoordinateError{JobID: jobID}
	}
	return e.DistanceAndTime(*a, *b)
}
