package presenter

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/medrex/glucose-tracker/internal/collection"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/sitelayout"
	"github.com/medrex/glucose-tracker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func site(t *testing.T, code string) *sitecode.Site {
	t.Helper()
	s, err := sitecode.Decode(code)
	require.NoError(t, err)
	return &s
}

func sampleState(t *testing.T) collection.State {
	total := 12
	start := time.UnixMilli(150)
	return collection.State{
		Records: []types.Reading{
			{ID: 3, GlucoseValue: 180.5, Note: "after lunch", Timestamp: time.UnixMilli(300), PunctureSite: site(t, "R2L")},
			{ID: 2, GlucoseValue: 95, Timestamp: time.UnixMilli(200)},
			{ID: 1, GlucoseValue: 110, Timestamp: time.UnixMilli(100)},
		},
		SortKey:         types.SortTimeDesc,
		Page:            1,
		PageSize:        5,
		HasMore:         true,
		TotalCount:      &total,
		PendingDeletes:  []int64{2},
		TimeWindow:      types.TimeWindow{Start: &start},
		SubmittedCount:  4,
		Recommendations: []sitecode.Site{*site(t, "L1L"), *site(t, "L1R")},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "table": FormatTable, "JSON": FormatJSON, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestRows_VisibleOnlyWithPendingMarks(t *testing.T) {
	rows := Rows(sampleState(t))
	require.Len(t, rows, 2)

	assert.Equal(t, int64(3), rows[0].ID)
	assert.Equal(t, "R2L", rows[0].Site)
	assert.Equal(t, time.UnixMilli(300).Local().Format(TimeLayout), rows[0].Time)
	assert.False(t, rows[0].Pending)

	assert.Equal(t, int64(2), rows[1].ID)
	assert.Empty(t, rows[1].Site)
	assert.True(t, rows[1].Pending)
}

func TestSummaryLines(t *testing.T) {
	assert.Equal(t, "Showing 2 of 12 readings", SummaryLine(collection.Summary{Shown: 2, Total: 12}))
	assert.Equal(t, "Readings added: 4", SubmittedLine(4))
}

func TestNewView(t *testing.T) {
	state := sampleState(t)
	state.Err = errors.New("store unreachable")

	v := NewView(state)
	assert.Equal(t, collection.Summary{Shown: 2, Total: 12}, v.Summary)
	assert.Equal(t, []string{"L1L", "L1R"}, v.Recommendations)
	assert.Equal(t, "store unreachable", v.Error)
	assert.Equal(t, 4, v.Submitted)
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatTable, NewView(sampleState(t))))

	out := buf.String()
	assert.Contains(t, out, "after lunch")
	assert.Contains(t, out, "180.5")
	assert.Contains(t, out, "deleting")
	assert.Contains(t, out, "Showing 2 of 12 readings")
	assert.Contains(t, out, "sorted time-desc")
	assert.Contains(t, out, "More readings on the next page")
	assert.Contains(t, out, "Readings added: 4")
	assert.Contains(t, out, "Recommended sites: L1L, L1R")
	assert.NotContains(t, out, "Error:")
}

func TestRender_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatTable, NewView(collection.State{SortKey: types.SortValueAsc, Page: 1, PageSize: 5})))

	out := buf.String()
	assert.Contains(t, out, "no readings")
	assert.Contains(t, out, "Showing 0 of 0 readings")
	assert.NotContains(t, out, "Readings added")
}

func TestRender_JSONAndYAML(t *testing.T) {
	v := NewView(sampleState(t))

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, v))
	var decoded View
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, v.Rows, decoded.Rows)
	assert.Equal(t, types.SortTimeDesc, decoded.SortKey)

	buf.Reset()
	require.NoError(t, Render(&buf, FormatYAML, v))
	var generic map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	assert.Equal(t, true, generic["has_more"])
	assert.Len(t, generic["rows"], 2)
}

func TestSiteTargets(t *testing.T) {
	targets, err := SiteTargets(sitelayout.Default(), []sitecode.Site{*site(t, "R5R")})
	require.NoError(t, err)
	require.Len(t, targets, 20)

	first := targets[0]
	assert.Equal(t, "L1L", first.Code)
	assert.Equal(t, "left", first.Hand)
	assert.Equal(t, 1, first.Finger)
	assert.Equal(t, 2.0, first.X)
	assert.Equal(t, 48.0, first.Y)
	assert.False(t, first.Recommended)

	last := targets[len(targets)-1]
	assert.Equal(t, "R5R", last.Code)
	assert.True(t, last.Recommended)
	assert.Equal(t, 9.0, last.X)

	var buf bytes.Buffer
	require.NoError(t, RenderSites(&buf, FormatTable, targets))
	assert.Contains(t, buf.String(), "Puncture sites")
	assert.Contains(t, buf.String(), "recommended")
}

func TestRenderHealth(t *testing.T) {
	report := &monitoring.HealthReport{
		Status:  monitoring.HealthStatusUnhealthy,
		Service: "glucose-cli",
		Checks: []monitoring.HealthCheck{
			{Name: "store", Status: monitoring.HealthStatusHealthy, Duration: 12 * time.Millisecond},
			{Name: "entries_api", Status: monitoring.HealthStatusUnhealthy, Message: "store list request failed"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderHealth(&buf, FormatTable, report))
	assert.Contains(t, buf.String(), "glucose-cli: unhealthy")
	assert.Contains(t, buf.String(), "store list request failed")
	assert.Contains(t, buf.String(), "12ms")

	buf.Reset()
	require.NoError(t, RenderHealth(&buf, FormatJSON, report))
	var decoded monitoring.HealthReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Checks, 2)
}
