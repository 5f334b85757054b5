package peakcurve

import (
	"math"
	"sort"

	"github.com/524D/mzdecon/internal/smooth"
	"github.com/524D/mzdecon/internal/wavelet"
)

// Regions with fewer raw samples are dropped
const minRegionSamples = 3

// Segmenter splits curves at the valleys between wavelet ridges
type Segmenter struct {
	Detector        wavelet.Detector
	MinRTRange      float64 // Max RT distance for matching ridges across scales
	SymThreshold    float64 // Max relative valley asymmetry for a split
	MaxCurveRTRange float64 // Regions wider than this are trimmed
	Method          smooth.Method
	PointsPerMinute float64
}

// ridgeTrack follows one ridge from coarse to fine scales
type ridgeTrack struct {
	rt        float64
	intensity float64
	lastScale int // Finest scale at which the ridge was matched
	streak    int // Number of scales at which the ridge was matched
}

type valley struct {
	rt        float64
	intensity float64
}

// Split divides a smoothed curve into regions, one per resolved elution peak.
// The parent curve is released; the returned curves own disjoint subsets of
// its raw samples. Regions with less than 3 samples are dropped.
func (s Segmenter) Split(c *Curve) []*Curve {
	if c.Len() == 0 {
		return nil
	}
	if c.smoothed == nil {
		c.Smooth(s.Method, s.PointsPerMinute)
	}

	var splits []float64
	var ridgeRTs []float64
	if c.RTWidth()*s.PointsPerMinute >= 1 && len(c.smoothed) > 2 {
		tracks := s.trackRidges(s.Detector.Ridges(c.smoothed))
		ridgeRTs = make([]float64, len(tracks))
		for i, tr := range tracks {
			ridgeRTs[i] = tr.rt
		}
		if len(tracks) > 1 {
			valleys := findValleys(c.smoothed, tracks)
			first := c.smoothed[0].Intensity
			last := c.smoothed[len(c.smoothed)-1].Intensity
			s.findSplits(0, len(tracks)-1, tracks, valleys, first, last, &splits)
			sort.Float64s(splits)
		}
	}

	regions := make([][]Sample, len(splits)+1)
	for _, smp := range c.raw {
		k := sort.Search(len(splits), func(i int) bool { return splits[i] > smp.RT })
		regions[k] = append(regions[k], smp)
	}

	var children []*Curve
	for _, reg := range regions {
		reg = s.trim(reg)
		if len(reg) < minRegionSamples {
			continue
		}
		child := FromSamples(c.MSLevel, c.Window, reg)
		child.setSmoothed(subRange(c.smoothed, child.StartRT, child.EndRT))
		if len(child.smoothed) < 2 {
			child.Smooth(s.Method, s.PointsPerMinute)
		}
		for _, rt := range ridgeRTs {
			if rt >= child.StartRT && rt <= child.EndRT {
				child.RidgeRTs = append(child.RidgeRTs, rt)
			}
		}
		children = append(children, child)
	}
	c.Release()
	return children
}

// trackRidges links the per-scale ridges (coarsest first) into tracks and
// returns the surviving tracks ordered by RT
func (s Segmenter) trackRidges(scales [][]wavelet.Ridge) []*ridgeTrack {
	maxScale := len(scales)
	var tracks []*ridgeTrack
	for k, ridges := range scales {
		scale := maxScale - 1 - k
		matched := make([]bool, len(ridges))
		used := make([]bool, len(tracks))
		// Accept the closest pair first, until no pair is close enough
		for {
			bt, br := -1, -1
			bestDist := s.MinRTRange
			for ti, tr := range tracks {
				if used[ti] {
					continue
				}
				for ri, r := range ridges {
					if matched[ri] {
						continue
					}
					if d := math.Abs(tr.rt - r.RT); d < bestDist {
						bestDist, bt, br = d, ti, ri
					}
				}
			}
			if bt < 0 {
				break
			}
			tr := tracks[bt]
			tr.rt = ridges[br].RT
			tr.intensity = ridges[br].Intensity
			tr.lastScale = scale
			tr.streak++
			used[bt] = true
			matched[br] = true
		}

		// Only coarse scales may start new ridges, finer ones mostly see noise
		if 2*scale > maxScale {
			for ri, r := range ridges {
				if matched[ri] || nearTrack(tracks, r.RT, s.MinRTRange) {
					continue
				}
				tracks = append(tracks, &ridgeTrack{
					rt:        r.RT,
					intensity: r.Intensity,
					lastScale: scale,
					streak:    1,
				})
			}
		}

		kept := tracks[:0]
		for _, tr := range tracks {
			gap := tr.lastScale - scale
			if gap > 2 && tr.streak <= gap {
				continue
			}
			kept = append(kept, tr)
		}
		tracks = kept
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].rt < tracks[j].rt })
	return tracks
}

func nearTrack(tracks []*ridgeTrack, rt float64, tol float64) bool {
	for _, tr := range tracks {
		if math.Abs(tr.rt-rt) < tol {
			return true
		}
	}
	return false
}

// findValleys returns the lowest smoothed point between each pair of
// consecutive ridges
func findValleys(pts []smooth.Point, tracks []*ridgeTrack) []valley {
	valleys := make([]valley, len(tracks)-1)
	for i := range valleys {
		lo, hi := tracks[i].rt, tracks[i+1].rt
		v := valley{rt: (lo + hi) / 2, intensity: math.Min(tracks[i].intensity, tracks[i+1].intensity)}
		found := false
		for _, p := range pts {
			if p.RT <= lo || p.RT >= hi {
				continue
			}
			if !found || p.Intensity < v.intensity {
				v = valley{rt: p.RT, intensity: p.Intensity}
				found = true
			}
		}
		valleys[i] = v
	}
	return valleys
}

// findSplits recursively finds valid split points between ridges left..right
func (s Segmenter) findSplits(left, right int, tracks []*ridgeTrack,
	valleys []valley, first, last float64, splits *[]float64) {
	for cut := left; cut < right; cut++ {
		if s.validSplit(left, right, cut, tracks, valleys, first, last) {
			*splits = append(*splits, valleys[cut].rt)
			s.findSplits(left, cut, tracks, valleys, first, last, splits)
			s.findSplits(cut+1, right, tracks, valleys, first, last, splits)
			return
		}
	}
}

// validSplit checks that the peaks on both sides of the valley at cut are
// roughly symmetric: the valley is about as high as the outer boundary of
// each side, relative to the highest ridge on that side.
func (s Segmenter) validSplit(left, right, cut int, tracks []*ridgeTrack,
	valleys []valley, first, last float64) bool {
	leftBound := first
	if left > 0 {
		leftBound = valleys[left-1].intensity
	}
	rightBound := last
	if right < len(tracks)-1 {
		rightBound = valleys[right].intensity
	}
	leftMax, rightMax := 0.0, 0.0
	for i := left; i <= cut; i++ {
		leftMax = math.Max(leftMax, tracks[i].intensity)
	}
	for i := cut + 1; i <= right; i++ {
		rightMax = math.Max(rightMax, tracks[i].intensity)
	}
	if leftMax <= 0 || rightMax <= 0 {
		return false
	}
	v := valleys[cut].intensity
	return math.Abs(v-leftBound)/leftMax < s.SymThreshold &&
		math.Abs(v-rightBound)/rightMax < s.SymThreshold
}

// trim removes samples from the ends of a region until it fits within
// MaxCurveRTRange. The lower end is removed, unless the apex is within a
// quarter of the range from one end, then the other end is removed.
func (s Segmenter) trim(reg []Sample) []Sample {
	if s.MaxCurveRTRange <= 0 {
		return reg
	}
	quarter := s.MaxCurveRTRange / 4
	for len(reg) >= minRegionSamples && reg[len(reg)-1].RT-reg[0].RT > s.MaxCurveRTRange {
		apex := 0
		for i, smp := range reg {
			if smp.Intensity > reg[apex].Intensity {
				apex = i
			}
		}
		first, last := reg[0], reg[len(reg)-1]
		switch {
		case reg[apex].RT-first.RT < quarter:
			reg = reg[:len(reg)-1]
		case last.RT-reg[apex].RT < quarter:
			reg = reg[1:]
		case first.Intensity <= last.Intensity:
			reg = reg[1:]
		default:
			reg = reg[:len(reg)-1]
		}
	}
	return reg
}

// subRange returns a copy of the points with RT in [lo,hi]
func subRange(pts []smooth.Point, lo, hi float64) []smooth.Point {
	i := sort.Search(len(pts), func(i int) bool { return pts[i].RT >= lo })
	j := sort.Search(len(pts), func(i int) bool { return pts[i].RT > hi })
	if i >= j {
		return nil
	}
	return append([]smooth.Point(nil), pts[i:j]...)
}
