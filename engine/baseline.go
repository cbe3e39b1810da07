package engine

// outlierDeviation is reported when a perfectly uniform history meets a
// different current value.
const outlierDeviation = 100.0

// tracked pairs each baselined feature with its deviation field.
var tracked = []struct {
	value     Feature
	deviation Feature
}{
	{RequestRate, RequestRateDeviation},
	{UniquePathsCount, UniquePathsCountDeviation},
	{ErrorRate, ErrorRateDeviation},
	{PayloadStddev, PayloadStddevDeviation},
	{PathEntropy, PathEntropyDeviation},
}

// Baseline keeps the last size values of every tracked feature for one
// identifier. All series are created up front by NewBaseline.
type Baseline struct {
	size   int
	prior  bool
	series map[Feature][]float64
}

// NewBaseline creates an empty baseline. With prior set, deviations are
// measured against the history before the current value is appended;
// otherwise the current value is appended first and included.
func NewBaseline(size int, prior bool) *Baseline {
	b := &Baseline{
		size:   size,
		prior:  prior,
		series: make(map[Feature][]float64, len(tracked)),
	}
	for _, t := range tracked {
		b.series[t.value] = make([]float64, 0, size)
	}
	return b
}

// Fold appends the tracked values of s and writes their deviations into s.
func (b *Baseline) Fold(s *Snapshot) {
	for _, t := range tracked {
		current := *s.field(t.value)
		var dev float64
		if b.prior {
			dev = deviation(b.series[t.value], current)
			b.push(t.value, current)
		} else {
			b.push(t.value, current)
			dev = deviation(b.series[t.value], current)
		}
		*s.field(t.deviation) = dev
	}
}

func (b *Baseline) push(f Feature, v float64) {
	hist := append(b.series[f], v)
	if over := len(hist) - b.size; over > 0 {
		n := copy(hist, hist[over:])
		hist = hist[:n]
	}
	b.series[f] = hist
}

// History returns a copy of the series kept for f.
func (b *Baseline) History(f Feature) []float64 {
	out := make([]float64, len(b.series[f]))
	copy(out, b.series[f])
	return out
}

// deviation is the z-score of current against history. Fewer than two
// points give 0; a zero-spread history gives 0 on a match and
// outlierDeviation otherwise.
func deviation(history []float64, current float64) float64 {
	if len(history) < 2 {
		return 0
	}
	if uniform(history) {
		if current == history[0] {
			return 0
		}
		return outlierDeviation
	}
	m := mean(history)
	sd := sampleStddev(history)
	if sd == 0 {
		return 0
	}
	return (current - m) / sd
}

// uniform is checked exactly so float rounding in the mean cannot turn a
// constant series into a tiny non-zero spread.
func uniform(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
