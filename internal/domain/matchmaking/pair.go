package matchmaking

import (
	"github.com/okian/blindpair/internal/domain/model"
)

// NextPair picks the next pair for the snapshot's session. It returns
// (nil, nil) once every unordered pair in the pool has been compared in the
// session, and ErrInsufficientItems for pools smaller than two.
func (e *Engine) NextPair(s Snapshot) (*model.MatchPair, error) {
	if len(s.Items) < pairSize {
		return nil, ErrInsufficientItems
	}
	pool := sortedPool(s.Items)
	h := newHistory(pool, s.Session, s.Global)
	if h.exhausted(len(pool)) {
		return nil, nil
	}

	phase := h.phase(pool)
	var (
		a, b  model.Item
		found bool
	)
	switch phase {
	case model.PhaseCoverage:
		a, b, found = e.coveragePair(pool, h)
	case model.PhaseDepth:
		a, b, found = e.depthPair(pool, h)
	}
	if !found {
		return nil, nil
	}

	left, right := e.assignPositions(a, b)
	return &model.MatchPair{
		CategoryID:  s.categoryID(),
		ItemAID:     a.ID,
		ItemBID:     b.ID,
		LeftItemID:  left,
		RightItemID: right,
		Phase:       phase,
	}, nil
}

// coveragePair prefers two unseen items; with a single unseen item left it
// pairs it with the least shown seen item.
func (e *Engine) coveragePair(pool []model.Item, h *history) (model.Item, model.Item, bool) {
	var unseen []model.Item
	for _, it := range pool {
		if !h.seen(it.ID) {
			unseen = append(unseen, it)
		}
	}

	var best pairCandidate
	for i := 0; i < len(unseen); i++ {
		for j := i + 1; j < len(unseen); j++ {
			if h.wasCompared(unseen[i].ID, unseen[j].ID) {
				continue
			}
			best.offer(unseen[i], unseen[j], coverageScore(unseen[i], unseen[j]))
		}
	}
	if best.ok {
		return best.a, best.b, true
	}

	for _, u := range unseen {
		if p, ok := leastSeenPartner(u, pool, h, true); ok {
			return u, p, true
		}
	}
	for _, u := range unseen {
		if p, ok := leastSeenPartner(u, pool, h, false); ok {
			e.relaxed(model.PhaseCoverage)
			return u, p, true
		}
	}
	return e.depthPair(pool, h)
}

func leastSeenPartner(u model.Item, pool []model.Item, h *history, respectStreak bool) (model.Item, bool) {
	var (
		best      model.Item
		bestApp   int
		bestScore float64
		found     bool
	)
	for _, p := range pool {
		if p.ID == u.ID || !h.seen(p.ID) || h.wasCompared(u.ID, p.ID) {
			continue
		}
		if respectStreak && h.streakBlocked(p.ID) {
			continue
		}
		app, score := h.appearances[p.ID], partnerScore(u, p)
		if !found || app < bestApp || (app == bestApp && score < bestScore) {
			best, bestApp, bestScore, found = p, app, score, true
		}
	}
	return best, found
}

// depthPair searches untried pairs, excluding streak-blocked items unless
// nothing else remains. Pools above the large threshold only consider the
// least compared items as rows.
func (e *Engine) depthPair(pool []model.Item, h *history) (model.Item, model.Item, bool) {
	rows := pool
	if len(pool) > e.largeThreshold && len(pool) > e.rowLimit {
		rows = pool[:e.rowLimit]
	}

	if c := bestDepthPair(rows, pool, h, true); c.ok {
		return c.a, c.b, true
	}
	e.relaxed(model.PhaseDepth)
	if c := bestDepthPair(rows, pool, h, false); c.ok {
		return c.a, c.b, true
	}
	return firstUncompared(pool, h)
}

func bestDepthPair(rows, cols []model.Item, h *history, respectStreak bool) pairCandidate {
	var best pairCandidate
	for _, a := range rows {
		if respectStreak && h.streakBlocked(a.ID) {
			continue
		}
		for _, b := range cols {
			if a.ID == b.ID || h.wasCompared(a.ID, b.ID) {
				continue
			}
			if respectStreak && h.streakBlocked(b.ID) {
				continue
			}
			best.offer(a, b, depthScore(h, a, b))
		}
	}
	return best
}

func firstUncompared(pool []model.Item, h *history) (model.Item, model.Item, bool) {
	for i := range pool {
		for j := i + 1; j < len(pool); j++ {
			if !h.wasCompared(pool[i].ID, pool[j].ID) {
				return pool[i], pool[j], true
			}
		}
	}
	return model.Item{}, model.Item{}, false
}

// pairCandidate tracks the lowest scoring pair; the first one offered wins
// ties.
type pairCandidate struct {
	a, b  model.Item
	score float64
	ok    bool
}

func (c *pairCandidate) offer(a, b model.Item, score float64) {
	if !c.ok || score < c.score {
		c.a, c.b, c.score, c.ok = a, b, score, true
	}
}
