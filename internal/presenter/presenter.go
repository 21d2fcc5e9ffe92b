// Package presenter turns controller state into rows and renders them as a
// table, JSON or YAML.
package presenter

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/medrex/glucose-tracker/internal/collection"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/sitelayout"
	"github.com/medrex/glucose-tracker/pkg/types"
	"gopkg.in/yaml.v3"
)

// TimeLayout is how reading times are shown
const TimeLayout = "2006-01-02 15:04"

// Format selects an output encoding
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an output format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// Row is one displayed reading
type Row struct {
	ID      int64   `json:"id" yaml:"id"`
	Time    string  `json:"time" yaml:"time"`
	Value   float64 `json:"value" yaml:"value"`
	Note    string  `json:"note" yaml:"note"`
	Site    string  `json:"site,omitempty" yaml:"site,omitempty"`
	Pending bool    `json:"pending,omitempty" yaml:"pending,omitempty"`
}

// Rows builds rows for the visible records, marking those with a delete in flight
func Rows(state collection.State) []Row {
	pending := make(map[int64]bool, len(state.PendingDeletes))
	for _, id := range state.PendingDeletes {
		pending[id] = true
	}

	visible := state.Visible()
	rows := make([]Row, 0, len(visible))
	for _, r := range visible {
		rows = append(rows, rowFor(r, pending[r.ID]))
	}
	return rows
}

func rowFor(r types.Reading, pending bool) Row {
	row := Row{
		ID:      r.ID,
		Time:    r.Timestamp.Local().Format(TimeLayout),
		Value:   r.GlucoseValue,
		Note:    r.Note,
		Pending: pending,
	}
	if r.PunctureSite != nil {
		row.Site = r.PunctureSite.String()
	}
	return row
}

// SummaryLine renders the "showing X of Y" line
func SummaryLine(s collection.Summary) string {
	return fmt.Sprintf("Showing %d of %d readings", s.Shown, s.Total)
}

// SubmittedLine renders the running count of readings added this session
func SubmittedLine(n int) string {
	return fmt.Sprintf("Readings added: %d", n)
}

// View is the renderable form of a controller state
type View struct {
	Rows            []Row              `json:"rows" yaml:"rows"`
	Summary         collection.Summary `json:"summary" yaml:"summary"`
	SortKey         types.SortKey      `json:"sort_key" yaml:"sort_key"`
	Page            int                `json:"page" yaml:"page"`
	PageSize        int                `json:"page_size" yaml:"page_size"`
	HasMore         bool               `json:"has_more" yaml:"has_more"`
	Submitted       int                `json:"submitted" yaml:"submitted"`
	Recommendations []string           `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	Error           string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewView builds a view from a state snapshot
func NewView(state collection.State) View {
	v := View{
		Rows:      Rows(state),
		Summary:   state.Summary(),
		SortKey:   state.SortKey,
		Page:      state.Page,
		PageSize:  state.PageSize,
		HasMore:   state.HasMore,
		Submitted: state.SubmittedCount,
	}
	for _, site := range state.Recommendations {
		v.Recommendations = append(v.Recommendations, site.String())
	}
	if state.Err != nil {
		v.Error = state.Err.Error()
	}
	return v
}

// Render writes the view in the requested format
func Render(w io.Writer, f Format, v View) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, v)
	case FormatYAML:
		return writeYAML(w, v)
	}

	var sb strings.Builder
	if v.Error != "" {
		sb.WriteString(errorStyle.Render("Error: " + v.Error))
		sb.WriteString("\n")
	}

	t := newTable("", "ID", "TIME", "VALUE", "NOTE", "SITE", "")
	for _, r := range v.Rows {
		status := ""
		if r.Pending {
			status = "deleting"
		}
		t.addRow(strconv.FormatInt(r.ID, 10), r.Time, formatValue(r.Value), r.Note, r.Site, status)
	}
	sb.WriteString(t.render())

	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%s  (page %d, %d per page, sorted %s)",
		SummaryLine(v.Summary), v.Page, v.PageSize, v.SortKey)))
	sb.WriteString("\n")
	if v.HasMore {
		sb.WriteString(mutedStyle.Render("More readings on the next page"))
		sb.WriteString("\n")
	}
	if v.Submitted > 0 {
		sb.WriteString(SubmittedLine(v.Submitted))
		sb.WriteString("\n")
	}
	if len(v.Recommendations) > 0 {
		sb.WriteString("Recommended sites: " + strings.Join(v.Recommendations, ", "))
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// SiteTarget is an interactive target placed on a hand image
type SiteTarget struct {
	Code        string  `json:"code" yaml:"code"`
	Hand        string  `json:"hand" yaml:"hand"`
	Finger      int     `json:"finger" yaml:"finger"`
	Side        string  `json:"side" yaml:"side"`
	X           float64 `json:"x" yaml:"x"`
	Y           float64 `json:"y" yaml:"y"`
	Recommended bool    `json:"recommended,omitempty" yaml:"recommended,omitempty"`
}

// SiteTargets places every lateral site in enumeration order
func SiteTargets(layout *sitelayout.Layout, recommended []sitecode.Site) ([]SiteTarget, error) {
	rec := make(map[sitecode.Site]bool, len(recommended))
	for _, s := range recommended {
		rec[s] = true
	}

	var targets []SiteTarget
	for site := range sitecode.Lateral() {
		p, err := layout.Position(site)
		if err != nil {
			return nil, fmt.Errorf("failed to place %s: %w", site, err)
		}
		targets = append(targets, SiteTarget{
			Code:        site.String(),
			Hand:        site.Hand.String(),
			Finger:      site.Finger,
			Side:        site.Side.String(),
			X:           p.X,
			Y:           p.Y,
			Recommended: rec[site],
		})
	}
	return targets, nil
}

// RenderSites writes site targets in the requested format
func RenderSites(w io.Writer, f Format, targets []SiteTarget) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, targets)
	case FormatYAML:
		return writeYAML(w, targets)
	}

	t := newTable("Puncture sites", "CODE", "HAND", "FINGER", "SIDE", "X", "Y", "")
	for _, s := range targets {
		mark := ""
		if s.Recommended {
			mark = "recommended"
		}
		t.addRow(s.Code, s.Hand, strconv.Itoa(s.Finger), s.Side, formatValue(s.X), formatValue(s.Y), mark)
	}
	_, err := io.WriteString(w, t.render())
	return err
}

// RenderHealth writes a health report in the requested format
func RenderHealth(w io.Writer, f Format, report *monitoring.HealthReport) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatYAML:
		return writeYAML(w, report)
	}

	t := newTable(fmt.Sprintf("%s: %s", report.Service, report.Status), "CHECK", "STATUS", "TOOK", "MESSAGE")
	for _, c := range report.Checks {
		t.addRow(c.Name, string(c.Status), c.Duration.Round(time.Millisecond).String(), c.Message)
	}
	_, err := io.WriteString(w, t.render())
	return err
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
