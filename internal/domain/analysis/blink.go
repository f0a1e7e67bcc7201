package analysis

// BlinkCounter counts closed-to-open eye transitions.
type BlinkCounter struct {
	threshold       float64
	minClosedFrames int

	closedRun int
	count     int
}

// NewBlinkCounter returns a counter treating EAR below threshold as closed.
// A blink needs at least minClosedFrames consecutive closed samples.
func NewBlinkCounter(threshold float64, minClosedFrames int) *BlinkCounter {
	if threshold <= 0 {
		threshold = DefaultEARThreshold
	}
	if minClosedFrames < 1 {
		minClosedFrames = DefaultMinClosedFrames
	}
	return &BlinkCounter{threshold: threshold, minClosedFrames: minClosedFrames}
}

// Observe feeds one EAR sample and reports whether it completed a blink.
func (b *BlinkCounter) Observe(ear float64) bool {
	if ear < b.threshold {
		b.closedRun++
		return false
	}
	blinked := b.closedRun >= b.minClosedFrames
	b.closedRun = 0
	if blinked {
		b.count++
	}
	return blinked
}

// Closed reports whether the last sample was a closed eye.
func (b *BlinkCounter) Closed() bool {
	return b.closedRun > 0
}

// Count returns the total blinks seen.
func (b *BlinkCounter) Count() int {
	return b.count
}

// Reset clears the counter.
func (b *BlinkCounter) Reset() {
	b.closedRun = 0
	b.count = 0
}
