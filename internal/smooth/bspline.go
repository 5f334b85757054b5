package smooth

// BSpline evaluates an open uniform B-spline of the given degree, using pts as
// control points, at steps equally spaced parameter values in [0,1).
// The first and last input points are inserted in the result, so the output
// covers exactly the same RT range as the input.
// A spline of degree p needs p+1 control points. A curve with fewer points
// than the degree, or exactly degree points, is returned unchanged.
func BSpline(pts []Point, degree int, steps int) []Point {
	n := len(pts)
	if degree < 1 || n <= degree {
		return append([]Point(nil), pts...)
	}
	if steps < n {
		steps = n
	}
	knots := clampedKnots(n, degree)

	out := make([]Point, 0, steps+2)
	out = append(out, pts[0])
	for j := 0; j < steps; j++ {
		t := float64(j) / float64(steps)
		span := knotSpan(knots, n, degree, t)
		var rt, intens float64
		for i := span - degree; i <= span; i++ {
			b := basis(i, degree, t, knots)
			rt += b * pts[i].RT
			intens += b * pts[i].Intensity
		}
		out = append(out, Point{RT: rt, Intensity: intens})
	}
	out = append(out, pts[n-1])
	return sortMerge(out)
}

// clampedKnots builds the knot vector for n control points: degree+1 zeros,
// uniformly spaced interior knots, and degree+1 ones.
func clampedKnots(n, degree int) []float64 {
	m := n + degree + 1
	knots := make([]float64, m)
	interior := n - degree
	for i := 0; i < m; i++ {
		switch {
		case i <= degree:
			knots[i] = 0
		case i >= n:
			knots[i] = 1
		default:
			knots[i] = float64(i-degree) / float64(interior)
		}
	}
	return knots
}

// knotSpan returns the index k with knots[k] <= t < knots[k+1]
func knotSpan(knots []float64, n, degree int, t float64) int {
	k := degree
	for k < n-1 && t >= knots[k+1] {
		k++
	}
	return k
}

// basis is the Cox-de Boor recursion for basis function i of degree p
func basis(i, p int, t float64, knots []float64) float64 {
	if p == 0 {
		if knots[i] <= t && t < knots[i+1] {
			return 1
		}
		return 0
	}
	var left, right float64
	if d := knots[i+p] - knots[i]; d > 0 {
		left = (t - knots[i]) / d * basis(i, p-1, t, knots)
	}
	if d := knots[i+p+1] - knots[i+1]; d > 0 {
		right = (knots[i+p+1] - t) / d * basis(i+1, p-1, t, knots)
	}
	return left + right
}
