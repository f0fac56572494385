// Package rating computes ELO updates from pairwise outcomes.
//
// All functions are pure. The caller persists the new ratings and bumps the
// item counters in the same atomic write that stores the comparison.
package rating

import "math"

// Rating model constants.
const (
	// DefaultKFactor is used when a study does not configure one.
	DefaultKFactor = 32.0
	// logisticScale is the rating distance at which odds are 10:1.
	logisticScale = 400.0

	provisionalComparisons = 10
	establishedComparisons = 30
	provisionalMultiplier  = 1.5
	settledMultiplier      = 0.75
)

// Change is the outcome of one ELO update.
type Change struct {
	WinnerNewRating float64
	LoserNewRating  float64
}

// WinnerDelta is the rating the winner gained.
func (c Change) WinnerDelta(winnerOld float64) float64 { return c.WinnerNewRating - winnerOld }

// ExpectedScore returns the probability that a player rated ra beats one rated rb.
func ExpectedScore(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/logisticScale))
}

// CalculateEloChange applies the logistic ELO update for one decided outcome.
// Ratings are unbounded.
func CalculateEloChange(winnerRating, loserRating, kFactor float64) Change {
	eWinner := ExpectedScore(winnerRating, loserRating)
	delta := kFactor * (1 - eWinner)
	return Change{
		WinnerNewRating: winnerRating + delta,
		LoserNewRating:  loserRating - delta,
	}
}

// AdaptiveKFactor scales base by how established an item's rating is: new
// items move faster and well-compared items settle.
func AdaptiveKFactor(base float64, comparisonCount int) float64 {
	switch {
	case comparisonCount < provisionalComparisons:
		return base * provisionalMultiplier
	case comparisonCount < establishedComparisons:
		return base
	default:
		return base * settledMultiplier
	}
}

// StandardError estimates the ELO standard error after n comparisons.
// It is +Inf when there is no evidence.
func StandardError(comparisonCount int) float64 {
	if comparisonCount <= 0 {
		return math.Inf(1)
	}
	return logisticScale / (math.Sqrt(float64(comparisonCount)) * math.Ln10)
}

// ConfidenceInterval95 returns the half-width of a 95% interval.
func ConfidenceInterval95(comparisonCount int) float64 {
	return 1.96 * StandardError(comparisonCount)
}
