package reading

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/types"
)

// SubmissionTimeFormat is the instant format sent to the store
const SubmissionTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ParseDraft validates raw form input. The value must be a positive number.
// An empty or unparseable date-time falls back to now.
func ParseDraft(in types.DraftInput, now time.Time) (*types.Draft, error) {
	raw := strings.TrimSpace(in.Value)
	if raw == "" {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "glucose value is required", nil)
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "glucose value must be a number", map[string]interface{}{
			"value": in.Value,
		})
	}
	if value <= 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "glucose value must be positive", map[string]interface{}{
			"value": value,
		})
	}

	draft := &types.Draft{
		GlucoseValue: value,
		Note:         in.Note,
		Timestamp:    now,
	}

	if ts, ok := ParseTimestamp(in.DateTime); ok {
		draft.Timestamp = ts
	}

	if code := strings.TrimSpace(in.Site); code != "" {
		site, err := sitecode.Decode(code)
		if err != nil {
			return nil, &types.TrackerError{
				Type:    types.ErrorTypeValidation,
				Code:    types.ErrCodeInvalidInput,
				Message: "puncture site is not a valid code",
				Details: map[string]interface{}{"site": code},
				Cause:   err,
			}
		}
		draft.PunctureSite = &site
	}

	return draft, nil
}

// ToSubmissionPayload builds the create request body. The puncture spot is
// omitted entirely when no site was chosen.
func ToSubmissionPayload(draft *types.Draft) types.SubmissionPayload {
	payload := types.SubmissionPayload{
		Value:       draft.GlucoseValue,
		Timestamp:   draft.Timestamp.UTC().Format(SubmissionTimeFormat),
		Description: draft.Note,
	}
	if draft.PunctureSite != nil {
		payload.PunctureSpot = draft.PunctureSite.String()
	}
	return payload
}

// FromDraft builds the local record for an acknowledged submission when the
// store echo carries no usable fields.
func FromDraft(draft *types.Draft, id int64) types.Reading {
	return types.Reading{
		ID:           id,
		GlucoseValue: draft.GlucoseValue,
		Note:         draft.Note,
		PunctureSite: draft.PunctureSite,
		Timestamp:    draft.Timestamp,
	}
}
