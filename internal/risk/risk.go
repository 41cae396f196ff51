// Package risk defines the shared risk vocabulary used across the decision
// engines: the closed set of risk tiers and the probability thresholds that
// map a continuous accident probability onto a tier.
package risk

import "fmt"

// Level represents a discrete risk tier.
type Level string

const (
	// Low indicates normal operating conditions.
	Low Level = "Low"
	// Medium indicates elevated conditions that warrant closer monitoring.
	Medium Level = "Medium"
	// High indicates conditions requiring intervention.
	High Level = "High"
)

// Probability thresholds for deriving a Level from an accident probability.
const (
	// LowMax is the exclusive upper bound of the Low band.
	LowMax = 0.3
	// HighMin is the exclusive lower bound of the High band.
	HighMin = 0.7
)

// Levels lists all tiers in ascending severity order.
func Levels() []Level {
	return []Level{Low, Medium, High}
}

// Valid reports whether l is one of the defined tiers.
func (l Level) Valid() bool {
	switch l {
	case Low, Medium, High:
		return true
	}
	return false
}

// Severity returns the tier's rank for ordering: Low=0, Medium=1, High=2.
// Unknown levels rank below Low.
func (l Level) Severity() int {
	switch l {
	case Low:
		return 0
	case Medium:
		return 1
	case High:
		return 2
	}
	return -1
}

// MoreSevere reports whether l outranks other.
func (l Level) MoreSevere(other Level) bool {
	return l.Severity() > other.Severity()
}

// FromProbability maps an accident probability onto a tier:
// p < 0.3 is Low, 0.3 <= p <= 0.7 is Medium, p > 0.7 is High.
func FromProbability(p float64) Level {
	switch {
	case p < LowMax:
		return Low
	case p > HighMin:
		return High
	default:
		return Medium
	}
}

// ParseLevel converts a string into a Level, rejecting unknown values.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return l, nil
}
