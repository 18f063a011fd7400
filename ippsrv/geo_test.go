package ippsrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeoDistance_sameLocationIsZero(t *testing.T) {
	d := geoDistance("geo:37.785,-122.406", "geo:37.785,-122.406")
	assert.InDelta(t, 0, d, 1e-6)
}

func TestGeoDistance_ignoresUncertaintySuffix(t *testing.T) {
	d := geoDistance("geo:37.785,-122.406;u=10", "geo:37.785,-122.406")
	assert.InDelta(t, 0, d, 1e-6)
}

func TestGeoDistance_nonZeroForDistinctPoints(t *testing.T) {
	d := geoDistance("geo:37.785,-122.406", "geo:37.795,-122.406")
	assert.Greater(t, d, 0.0)
	assert.Less(t, d, 2000.0, "~0.01 deg latitude is roughly 1.1km")
}

func TestGeoDistance_malformedValueYields999999(t *testing.T) {
	assert.Equal(t, 999999.0, geoDistance("not-a-geo-uri", "geo:1,2"))
	assert.Equal(t, 999999.0, geoDistance("geo:1,2", "geo:onlyone"))
}

func TestParseGeoLocation_altitudeOptional(t *testing.T) {
	g := parseGeoLocation("geo:1,2,3")
	assert.True(t, g.ok)
	assert.Equal(t, 3.0, g.alt)

	g2 := parseGeoLocation("geo:1,2")
	assert.True(t, g2.ok)
	assert.Equal(t, 0.0, g2.alt)
}
