package stats

import (
	"context"
	"sort"

	"github.com/okian/blindpair/internal/domain/model"
)

// DefaultTransitivityMaxItems bounds the O(n^3) triad scan.
const DefaultTransitivityMaxItems = 100

// NotComputed is the sentinel for transitivity fields that were skipped
// because the item set exceeded the configured cutoff.
const NotComputed = -1

// TransitivityResult summarises circular triads. All fields are NotComputed
// when the item count exceeded the detector's cutoff.
type TransitivityResult struct {
	CircularTriadCount int     `json:"circular_triad_count"`
	TotalTriads        int     `json:"total_triads"`
	TransitivityIndex  float64 `json:"transitivity_index"`
}

// Computed reports whether the scan actually ran.
func (r TransitivityResult) Computed() bool { return r.TotalTriads != NotComputed }

func notComputed() TransitivityResult {
	return TransitivityResult{
		CircularTriadCount: NotComputed,
		TotalTriads:        NotComputed,
		TransitivityIndex:  NotComputed,
	}
}

// DetectorOption applies a configuration option to the TriadDetector.
type DetectorOption func(*TriadDetector)

// WithMaxItems sets the item count above which the scan is skipped.
func WithMaxItems(n int) DetectorOption {
	return func(d *TriadDetector) {
		if n > 0 {
			d.maxItems = n
		}
	}
}

// TriadDetector counts circular triads in a comparison set.
type TriadDetector struct {
	maxItems int
}

// NewTriadDetector creates a detector with configuration options.
func NewTriadDetector(opts ...DetectorOption) *TriadDetector {
	d := &TriadDetector{maxItems: DefaultTransitivityMaxItems}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxItems returns the configured cutoff.
func (d *TriadDetector) MaxItems() int { return d.maxItems }

// DetectCircularTriads runs the default detector without a deadline.
func DetectCircularTriads(comparisons []model.Comparison) TransitivityResult {
	res, _ := NewTriadDetector().Detect(context.Background(), comparisons)
	return res
}

// Detect scans every fully compared triple. A triple is circular when its
// three dominance directions rotate the same way. ctx is checked once per
// outer row so a caller deadline bounds the scan.
func (d *TriadDetector) Detect(ctx context.Context, comparisons []model.Comparison) (TransitivityResult, error) {
	ids := itemsOf(comparisons)
	n := len(ids)
	if n > d.maxItems {
		return notComputed(), nil
	}

	idx := make(map[string]int, n)
	for i, id := range ids {
		idx[id] = i
	}
	wins := make([][]int, n)
	for i := range wins {
		wins[i] = make([]int, n)
	}
	for _, c := range comparisons {
		if c.ItemAID == c.ItemBID {
			continue
		}
		if c.WinnerID != c.ItemAID && c.WinnerID != c.ItemBID {
			continue
		}
		wins[idx[c.WinnerID]][idx[c.LoserID()]]++
	}

	compared := func(a, b int) bool { return wins[a][b]+wins[b][a] > 0 }
	// dir is +1 when a dominates b, -1 when b dominates a, 0 on a tie.
	dir := func(a, b int) int {
		switch {
		case wins[a][b] > wins[b][a]:
			return 1
		case wins[a][b] < wins[b][a]:
			return -1
		default:
			return 0
		}
	}

	var circular, total int
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return TransitivityResult{}, err
		}
		for j := i + 1; j < n; j++ {
			if !compared(i, j) {
				continue
			}
			for k := j + 1; k < n; k++ {
				if !compared(j, k) || !compared(i, k) {
					continue
				}
				total++
				ij, jk, ki := dir(i, j), dir(j, k), dir(k, i)
				if ij != 0 && ij == jk && jk == ki {
					circular++
				}
			}
		}
	}

	return TransitivityResult{
		CircularTriadCount: circular,
		TotalTriads:        total,
		TransitivityIndex:  transitivityIndex(circular, total),
	}, nil
}

func transitivityIndex(circular, total int) float64 {
	if total == 0 {
		return 1
	}
	idx := 1 - float64(circular)/float64(total)
	switch {
	case idx < 0:
		return 0
	case idx > 1:
		return 1
	}
	return idx
}

func itemsOf(comparisons []model.Comparison) []string {
	seen := make(map[string]struct{})
	for _, c := range comparisons {
		seen[c.ItemAID] = struct{}{}
		seen[c.ItemBID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
