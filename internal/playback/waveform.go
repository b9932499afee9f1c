package playback

import "hash/fnv"

// DefaultBarCount is the number of bars a waveform renders.
const DefaultBarCount = 40

// Bars returns deterministic pseudo-waveform magnitudes for a locator, one
// value per bar in (0,1]. The same locator always yields the same shape, so
// a result row keeps its waveform across refreshes without decoding audio.
func Bars(locator string, n int) []float64 {
	if n <= 0 {
		n = DefaultBarCount
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(locator))
	state := h.Sum64()
	if state == 0 {
		state = 1
	}

	bars := make([]float64, n)
	for i := range bars {
		// xorshift64 keeps the sequence cheap and stable.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		// Map onto [0.15, 1.0] so every bar stays visible.
		bars[i] = 0.15 + 0.85*float64(state%1000)/999
	}
	return bars
}

// BarFilled reports whether bar i of n renders as played for the given
// progress fraction. The comparison is strict, so the bar sitting exactly
// on the boundary stays unfilled: at fraction 0.5 over 10 bars, bars 0–4
// fill and bar 5 does not.
func BarFilled(i, n int, fraction float64) bool {
	if n <= 0 {
		return false
	}
	return float64(i)/float64(n)*100 < fraction*100
}
