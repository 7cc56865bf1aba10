// Package benchmarks provides timing estimates for cluster provisioning phases.
package benchmarks

import (
	"time"
)

// DefaultTimings are median phase durations of a three node cluster (seconds).
var DefaultTimings = map[string]int{
	"preflight":    3,
	"topology":     25,
	"volume-check": 2,
	"instances":    120,
	"volume":       20,
	"configure":    420,
	"finalize":     5,
}

// PhaseOrder defines the sequence of provisioning phases for ETA calculation.
var PhaseOrder = []string{
	"preflight",
	"topology",
	"volume-check",
	"instances",
	"volume",
	"configure",
	"finalize",
}

// PhaseRecord is one phase run as seen by a progress display. A zero
// EndedAt means the phase is still running.
type PhaseRecord struct {
	Phase     string
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}

// Done reports whether the phase finished.
func (r PhaseRecord) Done() bool {
	return !r.EndedAt.IsZero()
}

// Duration is the run time of a finished phase, or the time since start.
func (r PhaseRecord) Duration(now time.Time) time.Duration {
	if r.Done() {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// EstimateRemaining calculates the estimated time remaining based on
// current phase, elapsed time, and historical phase records.
func EstimateRemaining(currentPhase string, phaseElapsed time.Duration, history []PhaseRecord) time.Duration {
	return EstimateRemainingWithScale(currentPhase, phaseElapsed, history, PerformanceScale(currentPhase, phaseElapsed, history))
}

// EstimateRemainingWithScale calculates ETA while applying a performance scale factor.
func EstimateRemainingWithScale(
	currentPhase string,
	phaseElapsed time.Duration,
	history []PhaseRecord,
	scale float64,
) time.Duration {
	currentIdx := -1
	for i, p := range PhaseOrder {
		if p == currentPhase {
			currentIdx = i
			break
		}
	}
	if currentIdx < 0 {
		return 0
	}

	var remaining time.Duration
	if expected, ok := DefaultTimings[currentPhase]; ok {
		expectedDur := time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		if expectedDur > phaseElapsed {
			remaining += expectedDur - phaseElapsed
		}
	}

	completed := make(map[string]bool)
	for _, rec := range history {
		if rec.Done() {
			completed[rec.Phase] = true
		}
	}

	for _, phase := range PhaseOrder[currentIdx+1:] {
		if completed[phase] {
			continue
		}
		if expected, ok := DefaultTimings[phase]; ok {
			remaining += time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		}
	}
	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected durations.
// Example: expected 2m, observed 3m => scale=1.5 (future ETAs are stretched by 50%).
func PerformanceScale(currentPhase string, phaseElapsed time.Duration, history []PhaseRecord) float64 {
	var expectedTotal, actualTotal time.Duration

	for _, rec := range history {
		expectedSecs, ok := DefaultTimings[rec.Phase]
		if !ok || !rec.Done() {
			continue
		}
		expectedTotal += time.Duration(expectedSecs) * time.Second
		actualTotal += rec.EndedAt.Sub(rec.StartedAt)
	}

	// Fold an overrunning current phase in immediately so the ETA adapts quickly.
	if expectedSecs, ok := DefaultTimings[currentPhase]; ok && phaseElapsed > 0 {
		expectedCurrent := time.Duration(expectedSecs) * time.Second
		if phaseElapsed > expectedCurrent {
			expectedTotal += expectedCurrent
			actualTotal += phaseElapsed
		}
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	return min(max(scale, 0.6), 3.0)
}

// TotalEstimate returns the total estimated provisioning time.
func TotalEstimate() time.Duration {
	var total time.Duration
	for _, phase := range PhaseOrder {
		total += time.Duration(DefaultTimings[phase]) * time.Second
	}
	return total
}
