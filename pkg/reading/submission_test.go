package reading

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDraft_Valid(t *testing.T) {
	draft, err := ParseDraft(types.DraftInput{
		Value:    " 132.5 ",
		Note:     "post lunch",
		DateTime: "2024-02-01T13:10",
		Site:     "R2L",
	}, fixedNow)

	require.NoError(t, err)
	assert.Equal(t, 132.5, draft.GlucoseValue)
	assert.Equal(t, "post lunch", draft.Note)
	assert.True(t, draft.Timestamp.Equal(time.Date(2024, 2, 1, 13, 10, 0, 0, time.Local)))
	require.NotNil(t, draft.PunctureSite)
	assert.Equal(t, "R2L", draft.PunctureSite.String())
}

func TestParseDraft_DefaultsToNow(t *testing.T) {
	for _, dt := range []string{"", "   ", "not a date"} {
		draft, err := ParseDraft(types.DraftInput{Value: "90", DateTime: dt}, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, fixedNow, draft.Timestamp)
		assert.Nil(t, draft.PunctureSite)
	}
}

func TestParseDraft_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   types.DraftInput
	}{
		{"empty value", types.DraftInput{Value: ""}},
		{"blank value", types.DraftInput{Value: "  "}},
		{"not numeric", types.DraftInput{Value: "abc"}},
		{"nan", types.DraftInput{Value: "NaN"}},
		{"infinite", types.DraftInput{Value: "Inf"}},
		{"zero", types.DraftInput{Value: "0"}},
		{"negative", types.DraftInput{Value: "-5"}},
		{"bad site", types.DraftInput{Value: "100", Site: "L9Z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := ParseDraft(tt.in, fixedNow)
			assert.Nil(t, draft)
			assert.True(t, types.IsValidation(err), "got %v", err)
		})
	}
}

func TestParseDraft_BadSiteWrapsMalformedCode(t *testing.T) {
	_, err := ParseDraft(types.DraftInput{Value: "100", Site: "Q1L"}, fixedNow)
	assert.ErrorIs(t, err, sitecode.ErrMalformedCode)
}

func TestToSubmissionPayload_OmitsUnsetSite(t *testing.T) {
	draft := &types.Draft{
		GlucoseValue: 110,
		Note:         "fasting",
		Timestamp:    time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC),
	}

	body, err := json.Marshal(ToSubmissionPayload(draft))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, 110.0, decoded["value"])
	assert.Equal(t, "2024-03-10T08:30:00.000Z", decoded["timestamp"])
	assert.Equal(t, "fasting", decoded["description"])
	_, present := decoded["punctureSpot"]
	assert.False(t, present)
}

func TestToSubmissionPayload_WithSite(t *testing.T) {
	site := sitecode.Site{Hand: sitecode.HandLeft, Finger: 1, Side: sitecode.SideRight}
	payload := ToSubmissionPayload(&types.Draft{
		GlucoseValue: 95,
		Timestamp:    time.Date(2024, 3, 10, 9, 0, 0, 0, time.FixedZone("CET", 3600)),
		PunctureSite: &site,
	})

	assert.Equal(t, "L1R", payload.PunctureSpot)
	assert.Equal(t, "2024-03-10T08:00:00.000Z", payload.Timestamp)
}

func TestFromDraft(t *testing.T) {
	draft := &types.Draft{GlucoseValue: 101, Note: "n", Timestamp: fixedNow}
	r := FromDraft(draft, 7)
	assert.Equal(t, types.Reading{ID: 7, GlucoseValue: 101, Note: "n", Timestamp: fixedNow}, r)
}
