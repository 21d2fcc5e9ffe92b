package types

import (
	"time"

	"github.com/medrex/glucose-tracker/pkg/sitecode"
)

// Reading is one logged glucose reading as held by the client
type Reading struct {
	ID           int64          `json:"id" yaml:"id"`
	GlucoseValue float64        `json:"glucoseValue" yaml:"glucose_value"`
	Note         string         `json:"note" yaml:"note"`
	PunctureSite *sitecode.Site `json:"punctureSite,omitempty" yaml:"puncture_site,omitempty"`
	Timestamp    time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Synthetic reports whether the id was derived locally rather than assigned by the store
func (r Reading) Synthetic() bool {
	return r.ID < 0
}

// WirePayload is a loosely-typed record as returned by the store
type WirePayload map[string]interface{}

// SubmissionPayload is the body of a create request
type SubmissionPayload struct {
	Value        float64 `json:"value"`
	Timestamp    string  `json:"timestamp"`
	Description  string  `json:"description,omitempty"`
	PunctureSpot string  `json:"punctureSpot,omitempty"`
}

// DraftInput is raw form input for a new reading
type DraftInput struct {
	Value    string `json:"value"`
	Note     string `json:"note"`
	DateTime string `json:"date_time"`
	Site     string `json:"site"`
}

// Draft is a validated reading ready for submission
type Draft struct {
	GlucoseValue float64
	Note         string
	Timestamp    time.Time
	PunctureSite *sitecode.Site
}

// SortKey selects the server-side ordering
type SortKey string

const (
	SortTimeAsc   SortKey = "time-asc"
	SortTimeDesc  SortKey = "time-desc"
	SortValueAsc  SortKey = "value-asc"
	SortValueDesc SortKey = "value-desc"
)

// DefaultSortKey is used until the user picks another ordering
const DefaultSortKey = SortTimeDesc

// Valid reports whether the key is one of the supported orderings
func (k SortKey) Valid() bool {
	switch k {
	case SortTimeAsc, SortTimeDesc, SortValueAsc, SortValueDesc:
		return true
	}
	return false
}

// Page size options
const (
	DefaultPage     = 1
	DefaultPageSize = 5
)

// AllowedPageSizes lists the page sizes the UI offers
var AllowedPageSizes = []int{5, 10, 20}

// ValidPageSize reports whether n is an allowed page size
func ValidPageSize(n int) bool {
	for _, s := range AllowedPageSizes {
		if s == n {
			return true
		}
	}
	return false
}

// ListQuery represents a page request against the store
type ListQuery struct {
	SortBy SortKey `json:"sort_by"`
	Page   int     `json:"page"`
	Size   int     `json:"size"`
}

// EntryPage is one page of raw records plus the total, if reported
type EntryPage struct {
	Items []WirePayload
	Total *int
}

// TimeWindow restricts the visible records to an inclusive time range.
// A nil bound is open.
type TimeWindow struct {
	Start *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End   *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

// Contains reports whether t falls inside the window
func (w TimeWindow) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && t.After(*w.End) {
		return false
	}
	return true
}

// Open reports whether the window has no bounds
func (w TimeWindow) Open() bool {
	return w.Start == nil && w.End == nil
}
