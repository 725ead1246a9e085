// Package merge implements the item- and label-level merge used everywhere
// two copies of a list document have to collapse into one: conflict-version
// resolution, write-race reconciliation, and explicit sync.
//
// The algorithm is last-writer-wins at item granularity: the copy with the
// strictly newer modifiedAt replaces the other wholesale. Timestamps within
// the jitter tolerance count as equal and the baseline side wins the tie,
// deterministically. There is no field-level merging.
//
// Merging is idempotent and, apart from the explicit tie-break, commutative
// up to item and label identity, which lets the conflict resolver fold an
// unordered set of versions into one accumulator.
package merge

import (
	"time"

	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
)

// DefaultTolerance treats sub-second timestamp differences as equal,
// suppressing false conflicts from clock jitter between devices. It is a
// tunable, not a law; deployments with larger skew can widen it.
const DefaultTolerance = time.Second

// Items folds the local item sequence into the baseline. Baseline items win
// ties and near-ties; local items win only with a strictly newer timestamp
// (beyond the tolerance). Ids present on exactly one side are pure additions
// and are always kept. A tolerance <= 0 falls back to DefaultTolerance.
//
// The result is ordered most recently modified first. That order is a
// storage convenience only; callers must treat it as unstable beyond "same
// set of ids".
func Items(local, baseline []document.Item, tolerance time.Duration) []document.Item {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	byID := make(map[string]document.Item, len(baseline))
	order := make([]string, 0, len(baseline)+len(local))
	for _, it := range baseline {
		byID[it.ID] = it
		order = append(order, it.ID)
	}

	for _, it := range local {
		base, exists := byID[it.ID]
		if !exists {
			byID[it.ID] = it
			order = append(order, it.ID)
			continue
		}
		if it.ModifiedAt.Sub(base.ModifiedAt) > tolerance {
			byID[it.ID] = it
		}
		// Equal within tolerance, or older: baseline stays.
	}

	out := make([]document.Item, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	document.SortItems(out)
	return out
}

// Labels unions the two label sets by id. On collision the baseline copy
// wins regardless of which side edited last: labels carry no modification
// timestamp, so the non-baseline edit is dropped. That asymmetry is
// deliberate, observed behavior; do not upgrade it to timestamp-aware
// merging without a product decision.
func Labels(local, baseline []document.Label) []document.Label {
	out := make([]document.Label, 0, len(baseline)+len(local))
	seen := make(map[string]bool, len(baseline))
	for _, l := range baseline {
		out = append(out, l)
		seen[l.ID] = true
	}
	for _, l := range local {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	document.SortLabels(out)
	return out
}

// Documents merges two whole documents: items and labels per the rules
// above, list header from whichever side was modified more recently (the
// baseline wins an exact tie), and the current format version.
func Documents(local, baseline *document.ListDocument, tolerance time.Duration) *document.ListDocument {
	out := &document.ListDocument{
		Items:   Items(local.Items, baseline.Items, tolerance),
		Labels:  Labels(local.Labels, baseline.Labels),
		List:    baseline.List,
		Version: document.CurrentVersion,
	}
	if local.List.ModifiedAt.After(baseline.List.ModifiedAt) {
		out.List = local.List
	}
	if out.List.HiddenLabels != nil {
		out.List.HiddenLabels = append([]string(nil), out.List.HiddenLabels...)
	}
	return out
}
