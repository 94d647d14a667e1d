package orchestrator

import (
	"sync"
)

// CostStatus represents the current state of cost consumption.
type CostStatus int

const (
	// CostOK indicates usage is below the warning threshold.
	CostOK CostStatus = iota
	// CostWarning indicates usage is between warning and exhaustion.
	CostWarning
	// CostExhausted indicates the ceiling is fully consumed.
	CostExhausted
)

// String returns a human-readable representation of the cost status.
func (s CostStatus) String() string {
	switch s {
	case CostOK:
		return "OK"
	case CostWarning:
		return "Warning"
	case CostExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// DefaultWarningThreshold is the fraction of the ceiling at which warnings
// begin.
const DefaultWarningThreshold = 0.80

// CostMeter accumulates abstract cost units charged per adapter invocation
// and compares them against the run's ceiling. A ceiling of zero disables
// enforcement.
type CostMeter struct {
	mu               sync.Mutex
	ceiling          float64
	used             float64
	warningThreshold float64
	warned           bool
}

// NewCostMeter creates a meter with the given ceiling.
func NewCostMeter(ceiling float64) *CostMeter {
	return &CostMeter{
		ceiling:          ceiling,
		warningThreshold: DefaultWarningThreshold,
	}
}

// Charge adds one invocation's cost weight. Returns the new status, and
// whether this charge crossed the warning threshold for the first time.
func (m *CostMeter) Charge(weight float64) (status CostStatus, firstWarning bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used += weight
	status = m.statusLocked()
	if status == CostWarning && !m.warned {
		m.warned = true
		firstWarning = true
	}
	return status, firstWarning
}

// Status returns the current cost status.
func (m *CostMeter) Status() CostStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *CostMeter) statusLocked() CostStatus {
	if m.ceiling <= 0 {
		return CostOK
	}
	fraction := m.used / m.ceiling
	if fraction >= 1.0 {
		return CostExhausted
	}
	if fraction >= m.warningThreshold {
		return CostWarning
	}
	return CostOK
}

// Usage returns used units, the ceiling, and the consumed fraction.
func (m *CostMeter) Usage() (used, ceiling, fraction float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	used = m.used
	ceiling = m.ceiling
	if ceiling > 0 {
		fraction = used / ceiling
	}
	return used, ceiling, fraction
}
