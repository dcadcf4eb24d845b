package optimizer

import (
	"sort"
	"time"

	"github.com/VerdantProject/verdant/pkg/intensity"
)

// defaultSliceSeconds is the assumed segment length when a forecast has
// a single point and no neighbor to infer spacing from.
const defaultSliceSeconds = 3600

// curve is a piecewise-constant intensity curve with a prefix integral,
// so the mean intensity over any covered window is an O(1) (or amortized
// O(1) during a scan) query. Offsets are seconds relative to base.
type curve struct {
	base        time.Time
	starts      []int64
	ends        []int64
	values      []float64
	prefix      []float64
	coverageEnd int64
}

// buildCurve assembles a curve from forecast points, clipping segments
// at horizonEnd. Each point's segment length is inferred from its
// neighbors. Returns false when no evaluable segment remains.
func buildCurve(points []intensity.ForecastPoint, horizonEnd time.Time) (curve, bool) {
	points = intensity.NormalizeForecast(points)
	if len(points) == 0 {
		return curve{}, false
	}

	base := points[0].Timestamp
	horizonEnd = horizonEnd.UTC()

	c := curve{base: base}
	for i, p := range points {
		seg := sliceSeconds(points, i, horizonEnd)
		if seg <= 0 {
			continue
		}
		start := int64(p.Timestamp.Sub(base).Seconds())
		if start < 0 {
			continue
		}
		c.starts = append(c.starts, start)
		c.ends = append(c.ends, start+seg)
		c.values = append(c.values, p.Value)
	}
	if len(c.starts) == 0 {
		return curve{}, false
	}

	c.prefix = make([]float64, len(c.starts)+1)
	for i := range c.starts {
		c.prefix[i+1] = c.prefix[i] + float64(c.ends[i]-c.starts[i])*c.values[i]
	}
	c.coverageEnd = c.ends[len(c.ends)-1]
	return c, true
}

// sliceSeconds infers one point's segment length: next-point spacing,
// then previous-point spacing, then the default slice, clipped so no
// segment extends past horizonEnd.
func sliceSeconds(points []intensity.ForecastPoint, idx int, horizonEnd time.Time) int64 {
	at := points[idx].Timestamp
	max := int64(horizonEnd.Sub(at).Seconds())
	if max <= 0 {
		return 0
	}

	var seg int64
	switch {
	case idx+1 < len(points):
		seg = int64(points[idx+1].Timestamp.Sub(at).Seconds())
	case idx > 0:
		seg = int64(at.Sub(points[idx-1].Timestamp).Seconds())
	default:
		seg = defaultSliceSeconds
	}
	if seg <= 0 {
		return 0
	}
	if seg > max {
		seg = max
	}
	return seg
}

// coverageStart returns the first covered instant.
func (c curve) coverageStart() time.Time {
	return c.base.Add(time.Duration(c.starts[0]) * time.Second)
}

// covers reports whether [from, to] lies entirely inside the curve's
// covered range. Used to exclude regions with insufficient forecast
// coverage instead of extrapolating.
func (c curve) covers(from, to time.Time) bool {
	fromOffset := int64(from.UTC().Sub(c.base).Seconds())
	toOffset := int64(to.UTC().Sub(c.base).Seconds())
	return fromOffset >= c.starts[0] && toOffset <= c.coverageEnd
}

// meanAt returns the mean intensity over [start, start+d). The second
// return is false when the window is not fully covered.
func (c curve) meanAt(start time.Time, d time.Duration) (float64, bool) {
	startOffset := int64(start.UTC().Sub(c.base).Seconds())
	durSec := int64(d.Seconds())
	if durSec <= 0 || startOffset < c.starts[0] {
		return 0, false
	}
	endOffset := startOffset + durSec
	if endOffset > c.coverageEnd {
		return 0, false
	}
	sum := c.integralAt(endOffset) - c.integralAt(startOffset)
	return sum / float64(durSec), true
}

// integralAt returns the cumulative (intensity x seconds) from base to
// offset.
func (c curve) integralAt(offset int64) float64 {
	if offset <= c.starts[0] {
		return 0
	}
	if offset >= c.coverageEnd {
		return c.prefix[len(c.prefix)-1]
	}
	idx := sort.Search(len(c.ends), func(i int) bool { return c.ends[i] > offset })
	if idx >= len(c.ends) {
		return c.prefix[len(c.prefix)-1]
	}
	if offset <= c.starts[idx] {
		return c.prefix[idx]
	}
	return c.prefix[idx] + float64(offset-c.starts[idx])*c.values[idx]
}
