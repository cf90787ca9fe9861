package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjector_RoundTrip(t *testing.T) {
	pr := NewProjector(Point{Lat: 40.7128, Lng: -74.0060})

	pts := []Point{
		{Lat: 40.7128, Lng: -74.0060},
		{Lat: 40.7200, Lng: -74.0000},
		{Lat: 40.7000, Lng: -74.0200},
	}
	for _, p := range pts {
		back := pr.Unproject(pr.Project(p))
		assert.InDelta(t, p.Lat, back.Lat, 1e-9)
		assert.InDelta(t, p.Lng, back.Lng, 1e-9)
	}
}

func TestProjector_DistancesAtCityScale(t *testing.T) {
	pr := NewProjector(Point{Lat: 40.7128, Lng: -74.0060})

	// One degree of latitude is ~111.2 km; a 0.001 degree move is ~111 m.
	a := pr.Project(Point{Lat: 40.7128, Lng: -74.0060})
	b := pr.Project(Point{Lat: 40.7138, Lng: -74.0060})
	assert.InDelta(t, 111.2, a.Dist(b), 1.0)
}

func TestFeetMeters_RoundTrip(t *testing.T) {
	assert.InDelta(t, 20.0, MetersToFeet(FeetToMeters(20.0)), 1e-12)
	assert.InDelta(t, 6.096, FeetToMeters(20.0), 1e-9)
}

func TestXY_Perp(t *testing.T) {
	p := XY{X: 1, Y: 0}
	perp := p.Perp()
	assert.Equal(t, XY{X: 0, Y: 1}, perp)

	// Perpendicularity holds for arbitrary vectors.
	v := XY{X: 3, Y: -2}
	q := v.Perp()
	assert.InDelta(t, 0, v.X*q.X+v.Y*q.Y, 1e-12)
	assert.InDelta(t, v.Norm(), q.Norm(), 1e-12)
}

func TestXY_Unit_Degenerate(t *testing.T) {
	assert.Equal(t, XY{}, XY{}.Unit())
	assert.InDelta(t, 1.0, XY{X: 5, Y: 12}.Unit().Norm(), 1e-12)
}

func TestXY_Finite(t *testing.T) {
	assert.True(t, XY{X: 1, Y: 2}.Finite())
	assert.False(t, XY{X: math.NaN(), Y: 0}.Finite())
	assert.False(t, XY{X: 0, Y: math.Inf(1)}.Finite())
}

func TestStations_UniformSpacing(t *testing.T) {
	line := []XY{{X: 0, Y: 0}, {X: 100, Y: 0}}
	stations := Stations(line, 20)

	require.Len(t, stations, 5)
	for i, st := range stations {
		assert.InDelta(t, 10+float64(i)*20, st.Pos.X, 1e-9)
		assert.InDelta(t, 0, st.Pos.Y, 1e-9)
		assert.Equal(t, XY{X: 1, Y: 0}, st.Tangent)
	}
}

func TestStations_ShortSegmentYieldsMidpoint(t *testing.T) {
	line := []XY{{X: 0, Y: 0}, {X: 8, Y: 0}}
	stations := Stations(line, 20)

	require.Len(t, stations, 1)
	assert.InDelta(t, 4, stations[0].Pos.X, 1e-9)
}

func TestStations_Degenerate(t *testing.T) {
	assert.Nil(t, Stations(nil, 20))
	assert.Nil(t, Stations([]XY{{X: 1, Y: 1}}, 20))
	assert.Nil(t, Stations([]XY{{X: 1, Y: 1}, {X: 1, Y: 1}}, 20))
	assert.Nil(t, Stations([]XY{{X: 0, Y: 0}, {X: 100, Y: 0}}, 0))
}

func TestStations_TangentFollowsBend(t *testing.T) {
	// Right-angle polyline: stations before the corner point east,
	// after it north.
	line := []XY{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 50}}
	stations := Stations(line, 20)

	require.NotEmpty(t, stations)
	first, last := stations[0], stations[len(stations)-1]
	assert.Equal(t, XY{X: 1, Y: 0}, first.Tangent)
	assert.Equal(t, XY{X: 0, Y: 1}, last.Tangent)
}

func TestPolylineLength(t *testing.T) {
	assert.InDelta(t, 100, PolylineLength([]XY{{X: 0, Y: 0}, {X: 60, Y: 0}, {X: 60, Y: 40}}), 1e-9)
	assert.Zero(t, PolylineLength([]XY{{X: 3, Y: 3}}))
}

func TestSegmentDistance(t *testing.T) {
	a, b := XY{X: 0, Y: 0}, XY{X: 10, Y: 0}

	assert.InDelta(t, 5, SegmentDistance(XY{X: 5, Y: 5}, a, b), 1e-9)
	assert.InDelta(t, 5, SegmentDistance(XY{X: -5, Y: 0}, a, b), 1e-9)
	assert.InDelta(t, 5, SegmentDistance(XY{X: 13, Y: 4}, a, b), 1e-9)
	// Degenerate segment falls back to point distance.
	assert.InDelta(t, 5, SegmentDistance(XY{X: 3, Y: 4}, a, a), 1e-9)
}
