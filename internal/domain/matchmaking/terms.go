package matchmaking

import (
	"math"

	"github.com/okian/blindpair/internal/domain/model"
)

// Heuristic weights. Lower scores are better everywhere.
const (
	unseenOffset      = -1000.0
	needWeight        = 10.0
	varietyWeight     = 50.0
	sessionWeight     = 5.0
	globalPairWeight  = 20.0
	quadNeedWeight    = 5.0
	quadSessionWeight = 20.0
	quadRecentPenalty = 100.0
	eloDiversityMin   = 50.0

	varietyWindow = 3
	streakWindow  = 2
)

// needTerm favours items with few global comparisons.
func needTerm(a, b model.Item) float64 {
	return needWeight * float64(a.ComparisonCount+b.ComparisonCount)
}

// eloGapTerm favours close matches.
func eloGapTerm(a, b model.Item) float64 {
	return math.Abs(a.EloRating - b.EloRating)
}

// varietyPenalty is 50/recency for an item seen in the last three session
// comparisons, 0 otherwise.
func varietyPenalty(recency int) float64 {
	if recency < 1 || recency > varietyWindow {
		return 0
	}
	return varietyWeight / float64(recency)
}

func varietyTerm(h *history, a, b model.Item) float64 {
	return varietyPenalty(h.recency(a.ID)) + varietyPenalty(h.recency(b.ID))
}

// sessionTerm spreads appearances evenly within the session.
func sessionTerm(h *history, a, b model.Item) float64 {
	return sessionWeight * float64(h.appearances[a.ID]+h.appearances[b.ID])
}

// globalPairTerm spreads a pair's exposure across sessions.
func globalPairTerm(h *history, a, b model.Item) float64 {
	return globalPairWeight * float64(h.global[model.NewPairKey(a.ID, b.ID)])
}

func coverageScore(a, b model.Item) float64 {
	return unseenOffset + needTerm(a, b) + eloGapTerm(a, b)
}

func depthScore(h *history, a, b model.Item) float64 {
	return needTerm(a, b) + eloGapTerm(a, b) + varietyTerm(h, a, b) + sessionTerm(h, a, b) + globalPairTerm(h, a, b)
}

// partnerScore breaks ties between equally exposed coverage partners.
func partnerScore(unseen, partner model.Item) float64 {
	return needWeight*float64(partner.ComparisonCount) + eloGapTerm(unseen, partner)
}

func quadItemScore(h *history, it model.Item) float64 {
	score := quadNeedWeight*float64(it.ComparisonCount) + quadSessionWeight*float64(h.appearances[it.ID])
	if !h.seen(it.ID) {
		score += unseenOffset
	}
	if h.inRecent(it.ID, streakWindow) {
		score += quadRecentPenalty
	}
	return score
}
