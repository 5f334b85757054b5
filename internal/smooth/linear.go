package smooth

import "math"

// GapFill resamples pts onto a grid of equally spaced RT cells spanning the
// input. Each point goes to its nearest cell, a cell keeps its most intense
// point. Empty cells are filled by putting the mean of the enclosing filled
// cells at the middle of the gap, recursively.
func GapFill(pts []Point, cells int) []Point {
	if len(pts) < 2 || cells < 2 {
		return append([]Point(nil), pts...)
	}
	lo, hi := rtRange(pts)
	if hi <= lo {
		return append([]Point(nil), pts...)
	}
	step := (hi - lo) / float64(cells-1)

	vals := make([]float64, cells)
	filled := make([]bool, cells)
	for _, p := range pts {
		c := int(math.Round((p.RT - lo) / step))
		if c < 0 {
			c = 0
		} else if c >= cells {
			c = cells - 1
		}
		if !filled[c] || p.Intensity > vals[c] {
			vals[c] = p.Intensity
			filled[c] = true
		}
	}

	// The cells holding the lowest and highest RT are always filled
	prev := 0
	for i := 1; i < cells; i++ {
		if filled[i] {
			fillGap(vals, prev, i)
			prev = i
		}
	}

	out := make([]Point, cells)
	for i := range out {
		out[i] = Point{RT: lo + float64(i)*step, Intensity: vals[i]}
	}
	out[cells-1].RT = hi
	return out
}

func fillGap(vals []float64, start, end int) {
	if end-start < 2 {
		return
	}
	mid := (start + end) / 2
	vals[mid] = (vals[start] + vals[end]) / 2
	fillGap(vals, start, mid)
	fillGap(vals, mid, end)
}
