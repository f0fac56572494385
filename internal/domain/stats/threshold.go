package stats

import (
	"github.com/okian/blindpair/internal/domain/model"
)

// Status is the publishability verdict for a category.
type Status string

const (
	// StatusInsufficient means at least one condition failed.
	StatusInsufficient Status = "insufficient"
	// StatusPublishable means every condition passed.
	StatusPublishable Status = "publishable"
	// StatusConfirmation means the data clears the bar by a wide margin and
	// further votes only sharpen precision.
	StatusConfirmation Status = "confirmation"
)

// Threshold constants.
const (
	defaultComparisonsPerItem = 10
	confirmationMargin        = 1.5
)

// ThresholdResult is the composite decision plus the evidence behind it.
type ThresholdResult struct {
	Status              Status             `json:"status"`
	ExposureMet         bool               `json:"exposure_met"`
	VolumeMet           bool               `json:"volume_met"`
	ConnectedMet        bool               `json:"connected_met"`
	MinExposure         int                `json:"min_exposure"`
	RequiredExposures   int                `json:"required_exposures"`
	ItemsBelowMinimum   []string           `json:"items_below_minimum"`
	TotalComparisons    int                `json:"total_comparisons"`
	RequiredComparisons int                `json:"required_comparisons"`
	Connectivity        ConnectivityResult `json:"connectivity"`
}

// Publishable reports whether the status clears the bar.
func (r ThresholdResult) Publishable() bool { return r.Status != StatusInsufficient }

// RequiredComparisons resolves the total-comparison minimum for itemCount.
func RequiredComparisons(t model.Thresholds, itemCount int) int {
	if t.MinTotalComparisons > 0 {
		return t.MinTotalComparisons
	}
	return defaultComparisonsPerItem * itemCount
}

// ExposureCounts returns how often each item appears on either side of the
// valid comparisons.
func ExposureCounts(comparisons []model.Comparison) map[string]int {
	out := make(map[string]int)
	for _, c := range comparisons {
		if !c.Valid() {
			continue
		}
		out[c.ItemAID]++
		out[c.ItemBID]++
	}
	return out
}

// IsPublishableThreshold evaluates exposure, volume and connectivity over
// the valid comparisons among items. An empty item set is insufficient.
func IsPublishableThreshold(items []model.Item, comparisons []model.Comparison, t model.Thresholds) ThresholdResult {
	ids := make([]string, len(items))
	inScope := make(map[string]struct{}, len(items))
	for i, it := range items {
		ids[i] = it.ID
		inScope[it.ID] = struct{}{}
	}

	valid := make([]model.Comparison, 0, len(comparisons))
	for _, c := range comparisons {
		if !c.Valid() {
			continue
		}
		_, a := inScope[c.ItemAID]
		_, b := inScope[c.ItemBID]
		if a && b {
			valid = append(valid, c)
		}
	}

	exposures := ExposureCounts(valid)
	res := ThresholdResult{
		RequiredExposures:   t.MinExposuresPerItem,
		RequiredComparisons: RequiredComparisons(t, len(items)),
		TotalComparisons:    len(valid),
		ItemsBelowMinimum:   []string{},
		Connectivity:        CheckGraphConnectivity(ids, valid),
	}

	res.MinExposure = -1
	for _, id := range ids {
		e := exposures[id]
		if res.MinExposure < 0 || e < res.MinExposure {
			res.MinExposure = e
		}
		if e < t.MinExposuresPerItem {
			res.ItemsBelowMinimum = append(res.ItemsBelowMinimum, id)
		}
	}
	if res.MinExposure < 0 {
		res.MinExposure = 0
	}

	res.ExposureMet = len(items) > 0 && len(res.ItemsBelowMinimum) == 0
	res.VolumeMet = res.TotalComparisons >= res.RequiredComparisons
	res.ConnectedMet = res.Connectivity.Connected

	switch {
	case !res.ExposureMet || !res.VolumeMet || !res.ConnectedMet:
		res.Status = StatusInsufficient
	case float64(res.MinExposure) > confirmationMargin*float64(res.RequiredExposures) &&
		float64(res.TotalComparisons) > confirmationMargin*float64(res.RequiredComparisons):
		res.Status = StatusConfirmation
	default:
		res.Status = StatusPublishable
	}
	return res
}
