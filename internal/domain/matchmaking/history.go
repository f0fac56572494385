package matchmaking

import (
	"sort"

	"github.com/okian/blindpair/internal/domain/model"
)

// history is the per-call digest of the session and global comparisons for
// one item pool.
type history struct {
	appearances map[string]int
	compared    map[model.PairKey]struct{}
	global      map[model.PairKey]int
	// recent holds the last varietyWindow session comparisons, newest first.
	recent []model.Comparison
}

func newHistory(pool []model.Item, session, global []model.Comparison) *history {
	in := make(map[string]struct{}, len(pool))
	for _, it := range pool {
		in[it.ID] = struct{}{}
	}
	inPool := func(c model.Comparison) bool {
		_, a := in[c.ItemAID]
		_, b := in[c.ItemBID]
		return a && b && c.ItemAID != c.ItemBID
	}

	h := &history{
		appearances: make(map[string]int, len(pool)),
		compared:    make(map[model.PairKey]struct{}),
		global:      make(map[model.PairKey]int),
	}
	for _, c := range session {
		if !inPool(c) {
			continue
		}
		h.appearances[c.ItemAID]++
		h.appearances[c.ItemBID]++
		h.compared[c.Key()] = struct{}{}
	}
	for i := len(session) - 1; i >= 0 && len(h.recent) < varietyWindow; i-- {
		if inPool(session[i]) {
			h.recent = append(h.recent, session[i])
		}
	}
	for _, c := range global {
		if inPool(c) {
			h.global[c.Key()]++
		}
	}
	return h
}

func (h *history) seen(id string) bool { return h.appearances[id] > 0 }

func (h *history) wasCompared(a, b string) bool {
	_, ok := h.compared[model.NewPairKey(a, b)]
	return ok
}

// recency is 1 when id was in the latest comparison, 2 for the one before,
// and so on; 0 when id is not in the recent window.
func (h *history) recency(id string) int {
	for i, c := range h.recent {
		if c.Involves(id) {
			return i + 1
		}
	}
	return 0
}

func (h *history) inRecent(id string, window int) bool {
	for i := 0; i < window && i < len(h.recent); i++ {
		if h.recent[i].Involves(id) {
			return true
		}
	}
	return false
}

// streakBlocked reports whether id appeared in each of the last two
// session comparisons.
func (h *history) streakBlocked(id string) bool {
	if len(h.recent) < streakWindow {
		return false
	}
	for i := 0; i < streakWindow; i++ {
		if !h.recent[i].Involves(id) {
			return false
		}
	}
	return true
}

// exhausted reports whether every unordered pair of an n-item pool has
// already been compared this session.
func (h *history) exhausted(n int) bool {
	return len(h.compared) >= n*(n-1)/2
}

func (h *history) phase(pool []model.Item) model.Phase {
	for _, it := range pool {
		if !h.seen(it.ID) {
			return model.PhaseCoverage
		}
	}
	return model.PhaseDepth
}

// sortedPool copies items ordered by ascending global comparison count,
// then id.
func sortedPool(items []model.Item) []model.Item {
	pool := make([]model.Item, len(items))
	copy(pool, items)
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].ComparisonCount != pool[j].ComparisonCount {
			return pool[i].ComparisonCount < pool[j].ComparisonCount
		}
		return pool[i].ID < pool[j].ID
	})
	return pool
}
