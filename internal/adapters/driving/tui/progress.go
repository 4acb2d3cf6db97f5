package tui

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/custodia-labs/derivex/internal/core/ports/driving"
)

// Completion returns how far a pass has come. In delta mode the goal is the
// number of documents matching at the first sample and done counts those
// that stopped matching since. Otherwise done is the current match count
// against the namespace total.
func Completion(first, latest driving.Progress, delta bool) (done, goal int) {
	if delta {
		return latest.Processed, first.Matching
	}
	return latest.Matching, latest.Total
}

// Fraction is done/goal clamped to [0, 1].
func Fraction(done, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	f := float64(done) / float64(goal)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// FormatPercent renders done/goal as a percentage to one decimal.
func FormatPercent(done, goal int) string {
	return humanize.FtoaWithDigits(round1(Fraction(done, goal)*100), 1) + "%"
}

// FormatRate renders a documents-per-second rate to one decimal.
func FormatRate(rate float64) string {
	return humanize.CommafWithDigits(round1(rate), 1) + " docs/s"
}

// round1 rounds to one decimal; humanize truncates extra digits.
func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// FormatETA renders the estimated time remaining.
func FormatETA(eta time.Duration) string {
	if eta <= 0 {
		return "unknown"
	}
	return eta.Round(time.Second).String()
}

// Summary is a one-line rendering of a sample for non-interactive output.
func Summary(first, latest driving.Progress, delta bool) string {
	done, goal := Completion(first, latest, delta)
	return humanize.Comma(int64(done)) + "/" + humanize.Comma(int64(goal)) +
		" (" + FormatPercent(done, goal) + ")" +
		"  remaining " + humanize.Comma(int64(latest.Matching)) +
		"  rate " + FormatRate(latest.Rate) +
		"  eta " + FormatETA(latest.ETA)
}
