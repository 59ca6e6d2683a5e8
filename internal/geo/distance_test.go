package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
)

func TestDistanceSamePointIsZero(t *testing.T) {
	points := []domain.Position{
		{Lat: 47.0502, Lon: 8.3093},   // Lucerne
		{Lat: -33.8688, Lon: 151.2093}, // Sydney
		{Lat: 89.9, Lon: -179.9},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, Distance(&p, &p))
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := &domain.Position{Lat: 47.0502, Lon: 8.3093}
	b := &domain.Position{Lat: 47.3769, Lon: 8.5417} // Zurich

	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
	assert.InDelta(t, 40000, Distance(a, b), 2000)
}

func TestDistanceSmallLatitudeStep(t *testing.T) {
	a := &domain.Position{Lat: 47.0502, Lon: 8.3093}
	b := &domain.Position{Lat: 47.0503, Lon: 8.3093}

	// 0.0001 degree of latitude is about 11.1 m
	assert.InEpsilon(t, 11.1, Distance(a, b), 0.05)
}

func TestDistanceWithoutTwoFixes(t *testing.T) {
	a := &domain.Position{Lat: 47.0502, Lon: 8.3093}
	zero := &domain.Position{}

	assert.Equal(t, 0.0, Distance(a, nil))
	assert.Equal(t, 0.0, Distance(nil, a))
	assert.Equal(t, 0.0, Distance(a, zero))
	assert.Equal(t, 0.0, Distance(zero, a))
}
