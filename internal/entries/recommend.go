package entries

import (
	"sort"

	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/types"
)

// Recommend ranks lateral site codes for the next puncture. recent must be
// ordered most recent first. Codes never seen in recent come first in
// enumeration order, then used codes from least to most recently used.
func Recommend(recent []*types.Entry, count int) []string {
	codes := sitecode.LateralCodes()
	order := make(map[string]int, len(codes))
	for i, code := range codes {
		order[code] = i
	}

	// lastUse holds the position of the most recent use; larger is older
	lastUse := make(map[string]int)
	for i, e := range recent {
		if _, lateral := order[e.PunctureSpot]; !lateral {
			continue
		}
		if _, seen := lastUse[e.PunctureSpot]; !seen {
			lastUse[e.PunctureSpot] = i
		}
	}

	sort.SliceStable(codes, func(i, j int) bool {
		ui, usedI := lastUse[codes[i]]
		uj, usedJ := lastUse[codes[j]]
		switch {
		case usedI != usedJ:
			return !usedI
		case !usedI:
			return order[codes[i]] < order[codes[j]]
		default:
			return ui > uj
		}
	})

	if count > 0 && count < len(codes) {
		codes = codes[:count]
	}
	return codes
}
