package metrics

// StreamingMedian keeps an approximate median of a stream of values, in constant memory.
//
// It uses the P² algorithm, described in the paper https://dl.acm.org/doi/abs/10.1145/4372.4378,
// and in a more friendly way in the post in: https://www.baeldung.com/cs/streaming-median
//
// The zero value is an empty stream.
type StreamingMedian struct {
	markers  [5]float64
	counters [5]int64
}

// NewMedianMetric creates a metric reporting the streaming median of metricFn over the batches since
// the last reset. Each batch contributes one value, so with batches larger than one example this is
// a median of the batch means.
//
// prettyPrintFn can be nil, in which case values are printed with 3 decimal places.
func NewMedianMetric(name, shortName, metricType string, metricFn BaseMetricFn, prettyPrintFn PrettyPrintFn) Interface {
	return newMetric(name, shortName, metricType, metricFn, prettyPrintFn, &StreamingMedian{})
}

// NewMedianAbsoluteError returns the streaming median of MeanAbsoluteErrorFn over the batches.
func NewMedianAbsoluteError(name, shortName string) Interface {
	return NewMedianMetric(name, shortName, LossMetricType, MeanAbsoluteErrorFn, nil)
}

func (m *StreamingMedian) add(value, _ float64) float64 {
	m.Add(value)
	return m.Median()
}

func (m *StreamingMedian) reset() { m.Reset() }

// Median returns the current estimate of the median. It is 0 if no value was added.
func (m *StreamingMedian) Median() float64 {
	return m.markers[2]
}

// Add includes x in the stream of values.
func (m *StreamingMedian) Add(x float64) {
	if m.counters[4] == 0 {
		// First value: all markers start at x.
		for i := range 5 {
			m.markers[i] = x
			if i > 0 {
				m.counters[i] = 1
			}
		}
		return
	}

	// Extremes and the counters of the markers above x.
	m.markers[0] = min(x, m.markers[0])
	m.markers[4] = max(x, m.markers[4])
	m.counters[4]++ // m.counters[0] is always 0.
	for i := 1; i < 4; i++ {
		if x <= m.markers[i] {
			m.counters[i]++
		}
	}

	quantiles := [5]float64{0, 0.25, 0.5, 0.75, 1}
	n := float64(m.counters[4])
	for i := 1; i < 4; i++ {
		d := quantiles[i]*(n-1) - float64(m.counters[i])
		switch {
		case d >= 1:
			d = 1
			if m.counters[i] >= m.counters[i+1] || m.markers[i] >= m.markers[i+1] {
				continue
			}
		case d <= -1:
			d = -1
			if m.counters[i] <= m.counters[i-1] || m.markers[i] <= m.markers[i-1] {
				continue
			}
		default:
			continue
		}
		m.markers[i] = m.adjustedMarker(i, d)
		m.counters[i] += int64(d)
	}
}

// adjustedMarker returns the new value of marker i when moving its counter by d (+1 or -1): a
// parabolic interpolation, falling back to linear if the neighbours have the same count.
func (m *StreamingMedian) adjustedMarker(i int, d float64) float64 {
	nPrev, nCur, nNext := float64(m.counters[i-1]), float64(m.counters[i]), float64(m.counters[i+1])
	qPrev, qCur, qNext := m.markers[i-1], m.markers[i], m.markers[i+1]
	dnPrev, dnNext, dnOuter := nCur-nPrev, nNext-nCur, nNext-nPrev
	switch {
	case dnPrev > 0 && dnNext > 0:
		return qCur + d/dnOuter*((dnPrev+d)*(qNext-qCur)/dnNext+(dnNext-d)*(qCur-qPrev)/dnPrev)
	case dnOuter > 0:
		return qPrev + (dnPrev+d)*(qNext-qPrev)/dnOuter
	default:
		// Clumped markers.
		return qCur
	}
}

// Reset empties the stream.
func (m *StreamingMedian) Reset() {
	m.markers = [5]float64{0, 0, 0, 0, 0}
	m.counters = [5]int64{0, 0, 0, 0, 0}
}
