package orchestrator

// StuckDetector watches action signatures over a sliding window of recent
// steps. When the same signature appears threshold times within the window,
// the run is considered stalled and the loop consults the advisor.
type StuckDetector struct {
	window    int
	threshold int
	recent    []string
}

// NewStuckDetector creates a detector. A threshold below 2 or a window below
// the threshold falls back to defaults.
func NewStuckDetector(window, threshold int) *StuckDetector {
	if threshold < 2 {
		threshold = 3
	}
	if window < threshold {
		window = 10
	}
	return &StuckDetector{window: window, threshold: threshold}
}

// Record adds a dispatched action's signature and reports whether it crossed
// the repetition threshold.
func (d *StuckDetector) Record(signature string) bool {
	d.recent = append(d.recent, signature)
	if len(d.recent) > d.window {
		d.recent = d.recent[len(d.recent)-d.window:]
	}

	count := 0
	for _, s := range d.recent {
		if s == signature {
			count++
		}
	}
	return count >= d.threshold
}

// Reset clears the window. Called after an advisor consultation so the same
// stall is not reported twice.
func (d *StuckDetector) Reset() {
	d.recent = d.recent[:0]
}
