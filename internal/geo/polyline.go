package geo

// Station is a resampled position along a polyline with its local
// tangent direction (unit vector).
type Station struct {
	Pos     XY
	Tangent XY
}

// PolylineLength returns the total arc length of a polyline in meters.
func PolylineLength(line []XY) float64 {
	var total float64
	for i := 1; i < len(line); i++ {
		total += line[i-1].Dist(line[i])
	}
	return total
}

// Stations resamples a polyline at uniform arc-length intervals. The
// first station sits half a step in from the start so stations are
// centered within the segment. A polyline shorter than one step still
// yields its midpoint, so short blocks are not silently dropped.
func Stations(line []XY, step float64) []Station {
	if len(line) < 2 || step <= 0 {
		return nil
	}
	total := PolylineLength(line)
	if total == 0 {
		return nil
	}

	var distances []float64
	if total < step {
		distances = []float64{total / 2}
	} else {
		for d := step / 2; d <= total-step/2+1e-9; d += step {
			distances = append(distances, d)
		}
	}

	stations := make([]Station, 0, len(distances))
	for _, d := range distances {
		pos, tangent, ok := interpolate(line, d)
		if !ok {
			continue
		}
		stations = append(stations, Station{Pos: pos, Tangent: tangent})
	}
	return stations
}

// interpolate walks the polyline to arc-length distance d and returns
// the position and the unit tangent of the containing segment.
func interpolate(line []XY, d float64) (XY, XY, bool) {
	remaining := d
	for i := 1; i < len(line); i++ {
		seg := line[i].Sub(line[i-1])
		length := seg.Norm()
		if length == 0 {
			continue
		}
		if remaining <= length {
			t := remaining / length
			return line[i-1].Add(seg.Scale(t)), seg.Unit(), true
		}
		remaining -= length
	}
	// Arc length overshoot from float accumulation: clamp to the end.
	last := len(line) - 1
	for i := last; i >= 1; i-- {
		seg := line[i].Sub(line[i-1])
		if seg.Norm() > 0 {
			return line[last], seg.Unit(), true
		}
	}
	return XY{}, XY{}, false
}

// SegmentDistance returns the distance from p to the segment a-b.
func SegmentDistance(p, a, b XY) float64 {
	ab := b.Sub(a)
	length2 := ab.X*ab.X + ab.Y*ab.Y
	if length2 == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / length2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return p.Dist(a.Add(ab.Scale(t)))
}
