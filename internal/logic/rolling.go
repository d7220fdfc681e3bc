package logic

import "math"

// Rolling-window primitives for the feature engine. Every function here is
// lagged: the window for position i covers positions [i-window, i-1] and
// never i itself, so a feature for game G can only see games strictly before
// G within its group. Positions with fewer than minPeriods usable prior
// observations come back as NaN.

// WindowSpec is one (window, min_periods) pair. Windows are profile
// configuration, never inline constants: historical model versions used
// 10/20/40/82-game windows and each must be reproducible.
type WindowSpec struct {
	Window     int `json:"window"`
	MinPeriods int `json:"min_periods"`
}

func laggedWindow(i, window int) (lo, hi int) {
	lo = i - window
	if lo < 0 {
		lo = 0
	}
	return lo, i
}

// laggedRollingMean returns the trailing mean of the prior window at each
// position. NaN inputs are skipped; they count against minPeriods.
func laggedRollingMean(values []float64, spec WindowSpec) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		lo, hi := laggedWindow(i, spec.Window)
		sum, n := 0.0, 0
		for j := lo; j < hi; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			sum += values[j]
			n++
		}
		if n < spec.MinPeriods || n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// laggedRollingStd returns the trailing sample standard deviation (ddof=1,
// matching the training tables produced by pandas) of the prior window.
func laggedRollingStd(values []float64, spec WindowSpec) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		lo, hi := laggedWindow(i, spec.Window)
		sum, n := 0.0, 0
		for j := lo; j < hi; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			sum += values[j]
			n++
		}
		if n < spec.MinPeriods || n < 2 {
			out[i] = math.NaN()
			continue
		}
		mean := sum / float64(n)
		var ss float64
		for j := lo; j < hi; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			d := values[j] - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}

// TailMean is the single-position form of laggedRollingMean over a complete
// history: the mean of the last window observations. Used when reconstructing
// "as of now" aggregates. Returns NaN below minPeriods.
func TailMean(values []float64, spec WindowSpec) float64 {
	lo, hi := laggedWindow(len(values), spec.Window)
	sum, n := 0.0, 0
	for j := lo; j < hi; j++ {
		if math.IsNaN(values[j]) {
			continue
		}
		sum += values[j]
		n++
	}
	if n < spec.MinPeriods || n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// TailStd is the single-position form of laggedRollingStd.
func TailStd(values []float64, spec WindowSpec) float64 {
	lo, hi := laggedWindow(len(values), spec.Window)
	window := values[lo:hi]
	sum, n := 0.0, 0
	for _, v := range window {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n < spec.MinPeriods || n < 2 {
		return math.NaN()
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range window {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
