// Package geo provides the planar spatial primitives the siting engine
// works in: WGS84 points, a local equirectangular projection, and
// polyline resampling for station generation.
package geo

import "math"

// earthRadiusM is the mean Earth radius in meters.
const earthRadiusM = 6371008.8

// FtToM converts feet to meters.
const FtToM = 0.3048

// Point is an immutable WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// XY is a position in projected planar meters.
type XY struct {
	X float64
	Y float64
}

// Add returns p translated by q.
func (p XY) Add(q XY) XY { return XY{p.X + q.X, p.Y + q.Y} }

// Sub returns p minus q.
func (p XY) Sub(q XY) XY { return XY{p.X - q.X, p.Y - q.Y} }

// Scale returns p scaled by s.
func (p XY) Scale(s float64) XY { return XY{p.X * s, p.Y * s} }

// Dist returns the Euclidean distance to q in meters.
func (p XY) Dist(q XY) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Norm returns the vector length of p.
func (p XY) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Unit returns p normalized to unit length, or the zero vector when p is
// degenerate.
func (p XY) Unit() XY {
	n := p.Norm()
	if n == 0 {
		return XY{}
	}
	return XY{p.X / n, p.Y / n}
}

// Perp returns the left perpendicular of p (rotation by +90 degrees).
func (p XY) Perp() XY { return XY{-p.Y, p.X} }

// Finite reports whether both components are finite numbers.
func (p XY) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// FeetToMeters converts a distance in feet to meters.
func FeetToMeters(ft float64) float64 { return ft * FtToM }

// MetersToFeet converts a distance in meters to feet.
func MetersToFeet(m float64) float64 { return m / FtToM }

// Projector maps WGS84 coordinates onto a local planar frame in meters
// using an equirectangular projection about a reference point. At city
// scale the distortion is negligible for clearance distances measured in
// feet.
type Projector struct {
	lat0   float64
	lng0   float64
	cosLat float64
}

// NewProjector builds a projector centered on the given reference point.
func NewProjector(origin Point) *Projector {
	return &Projector{
		lat0:   origin.Lat,
		lng0:   origin.Lng,
		cosLat: math.Cos(origin.Lat * math.Pi / 180),
	}
}

// Project converts a WGS84 point to local planar meters.
func (pr *Projector) Project(p Point) XY {
	return XY{
		X: earthRadiusM * (p.Lng - pr.lng0) * math.Pi / 180 * pr.cosLat,
		Y: earthRadiusM * (p.Lat - pr.lat0) * math.Pi / 180,
	}
}

// Unproject converts local planar meters back to a WGS84 point.
func (pr *Projector) Unproject(xy XY) Point {
	return Point{
		Lat: pr.lat0 + xy.Y/earthRadiusM*180/math.Pi,
		Lng: pr.lng0 + xy.X/(earthRadiusM*pr.cosLat)*180/math.Pi,
	}
}
