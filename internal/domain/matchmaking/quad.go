package matchmaking

import (
	"math"
	"sort"

	"github.com/okian/blindpair/internal/domain/model"
)

// NextQuad picks four items for a quad vote. It returns (nil, nil) once
// every pair in the pool has been compared this session, and
// ErrInsufficientItems for pools smaller than four.
func (e *Engine) NextQuad(s Snapshot) (*model.MatchQuad, error) {
	if len(s.Items) < quadSize {
		return nil, ErrInsufficientItems
	}
	pool := sortedPool(s.Items)
	h := newHistory(pool, s.Session, s.Global)
	if h.exhausted(len(pool)) {
		return nil, nil
	}

	ranked := rankForQuad(pool, h)
	chosen := append([]model.Item(nil), ranked[:quadSize-1]...)
	chosen = append(chosen, pickDiverse(chosen, ranked[quadSize-1:]))

	ids := make([]string, len(chosen))
	for i, it := range chosen {
		ids[i] = it.ID
	}
	positions := append([]string(nil), ids...)
	e.shuffle(positions)

	return &model.MatchQuad{
		CategoryID: s.categoryID(),
		ItemIDs:    ids,
		Positions:  positions,
		Phase:      h.phase(pool),
	}, nil
}

func rankForQuad(pool []model.Item, h *history) []model.Item {
	ranked := append([]model.Item(nil), pool...)
	scores := make(map[string]float64, len(ranked))
	for _, it := range ranked {
		scores[it.ID] = quadItemScore(h, it)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return scores[ranked[i].ID] < scores[ranked[j].ID] })
	return ranked
}

// pickDiverse returns the first candidate whose rating is at least
// eloDiversityMin away from the chosen items' mean, or the best ranked
// candidate when none is.
func pickDiverse(chosen, candidates []model.Item) model.Item {
	var sum float64
	for _, it := range chosen {
		sum += it.EloRating
	}
	avg := sum / float64(len(chosen))
	for _, c := range candidates {
		if math.Abs(c.EloRating-avg) >= eloDiversityMin {
			return c
		}
	}
	return candidates[0]
}
