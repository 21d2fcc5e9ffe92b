package entries

import (
	"testing"

	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/types"
	"github.com/stretchr/testify/assert"
)

func history(spots ...string) []*types.Entry {
	out := make([]*types.Entry, 0, len(spots))
	for i, spot := range spots {
		out = append(out, &types.Entry{ID: int64(len(spots) - i), PunctureSpot: spot})
	}
	return out
}

func TestRecommend(t *testing.T) {
	all := sitecode.LateralCodes()

	tests := []struct {
		name   string
		recent []*types.Entry
		count  int
		want   []string
	}{
		{
			name:  "empty history follows enumeration order",
			count: 4,
			want:  []string{"L1L", "L1R", "L2L", "L2R"},
		},
		{
			name:   "used codes move behind unused ones",
			recent: history("L1R", "L1L"),
			count:  2,
			want:   []string{"L2L", "L2R"},
		},
		{
			name:   "center and blank sites are ignored",
			recent: history("L1C", "", "bogus"),
			count:  1,
			want:   []string{"L1L"},
		},
		{
			name:   "zero count returns every lateral code",
			recent: nil,
			count:  0,
			want:   all,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recommend(tt.recent, tt.count))
		})
	}
}

func TestRecommend_AllUsedReturnsLeastRecentFirst(t *testing.T) {
	codes := sitecode.LateralCodes()
	// most recent first: the last enumeration code was used most recently
	recent := make([]*types.Entry, 0, len(codes))
	for i := len(codes) - 1; i >= 0; i-- {
		recent = append(recent, &types.Entry{PunctureSpot: codes[i]})
	}
	// a repeat of L1L at the head makes it the most recent use
	recent = append([]*types.Entry{{PunctureSpot: "L1L"}}, recent...)

	got := Recommend(recent, 3)
	assert.Equal(t, []string{"L1R", "L2L", "L2R"}, got)
}
