package loadtest

import (
	"sort"

	service "github.com/okian/blindpair/internal/app"
)

// agreement returns the Spearman rank correlation between the observed
// leaderboard order and the order implied by truth. Fewer than two items
// give 1.
func agreement(rankings []service.Ranking, truth func(itemID string) float64) float64 {
	n := len(rankings)
	if n < 2 {
		return 1
	}

	observed := make(map[string]int, n)
	for i, r := range rankings {
		observed[r.ItemID] = i
	}

	ids := make([]string, 0, n)
	for _, r := range rankings {
		ids = append(ids, r.ItemID)
	}
	sort.SliceStable(ids, func(i, j int) bool { return truth(ids[i]) > truth(ids[j]) })

	var sumSq float64
	for expected, id := range ids {
		d := float64(observed[id] - expected)
		sumSq += d * d
	}
	nf := float64(n)
	return 1 - 6*sumSq/(nf*(nf*nf-1))
}
