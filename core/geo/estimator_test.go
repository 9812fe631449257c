package geo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

var (
	boston = model.Coordinate{Lat: 42.3601, Lng: -71.0589}
	nyc    = model.Coordinate{Lat: 40.7128, Lng: -74.0060}
)

func TestDistanceAndTime(t *testing.T) {
	e := NewEstimator(0)
	miles, minutes, err := e.DistanceAndTime(boston, nyc)
	require.NoError(t, err)
	assert.InDelta(t, 190.2, miles, 1.0)
	assert.Equal(t, e.Minutes(miles), minutes)
	assert.GreaterOrEqual(t, float64(minutes), miles/30*60)

	zero, zm, err := e.DistanceAndTime(boston, boston)
	require.NoError(t, err)
	assert.Zero(t, zero)
	assert.Zero(t, zm)
}

func TestMinutesRoundsUp(t *testing.T) {
	e := Estimator{SpeedMPH: 30}
	assert.Equal(t, 20, e.Minutes(10))
	assert.Equal(t, 21, e.Minutes(10.01))
	assert.Equal(t, 1, e.Minutes(0.001))
}

func TestMonotonic(t *testing.T) {
	e := NewEstimator(DefaultSpeedMPH)
	prevMiles, prevMinutes := 0.0, 0
	for i := 1; i <= 20; i++ {
		b := model.Coordinate{Lat: boston.Lat + float64(i)*0.05, Lng: boston.Lng}
		miles, minutes, err := e.DistanceAndTime(boston, b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, miles, prevMiles)
		assert.GreaterOrEqual(t, minutes, prevMinutes)
		prevMiles, prevMinutes = miles, minutes
	}
}

func TestBetweenMissingCoordinate(t *testing.T) {
	e := NewEstimator(0)
	_, _, err := e.Between("j1", &boston, nil)
	var mce *model.MissingCoordinateError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, "j1", mce.JobID)

	_, _, err = e.DistanceAndTime(boston, model.Coordinate{Lat: 120})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}
