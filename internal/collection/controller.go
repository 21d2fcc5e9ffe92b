// Package collection reconciles a locally held page of readings with the
// remote reading store under sort, paging, window filter, create and delete.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medrex/glucose-tracker/pkg/config"
	"github.com/medrex/glucose-tracker/pkg/interfaces"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/medrex/glucose-tracker/pkg/reading"
	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/types"
	"go.opentelemetry.io/otel/attribute"
)

// Mode is the externally observable fetch state of a Controller
type Mode int

const (
	ModeIdle Mode = iota
	ModeFetching
	ModeFetchFailed
	ModeReady
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeFetching:
		return "fetching"
	case ModeFetchFailed:
		return "fetch_failed"
	case ModeReady:
		return "ready"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Options configures a Controller
type Options struct {
	PageSize           int
	SortKey            types.SortKey
	RefreshAfterDelete bool
	// RequestTimeout bounds every store call. Zero means no bound beyond the caller's context.
	RequestTimeout time.Duration
	Now            func() time.Time
}

// OptionsFromConfig builds controller options from application configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PageSize:           cfg.Collection.DefaultPageSize,
		SortKey:            types.SortKey(cfg.Collection.DefaultSort),
		RefreshAfterDelete: cfg.Collection.RefreshAfterDelete,
		RequestTimeout:     cfg.Store.RequestTimeout(),
	}
}

// State is a point-in-time copy of the controller state
type State struct {
	Records         []types.Reading  `json:"records" yaml:"records"`
	SortKey         types.SortKey    `json:"sort_key" yaml:"sort_key"`
	Page            int              `json:"page" yaml:"page"`
	PageSize        int              `json:"page_size" yaml:"page_size"`
	HasMore         bool             `json:"has_more" yaml:"has_more"`
	TotalCount      *int             `json:"total_count,omitempty" yaml:"total_count,omitempty"`
	PendingDeletes  []int64          `json:"pending_deletes" yaml:"pending_deletes"`
	TimeWindow      types.TimeWindow `json:"time_window" yaml:"time_window"`
	SubmittedCount  int              `json:"submitted_count" yaml:"submitted_count"`
	Recommendations []sitecode.Site  `json:"recommendations" yaml:"recommendations"`
	Mode            Mode             `json:"-" yaml:"-"`
	Err             error            `json:"-" yaml:"-"`
}

// Visible returns the records inside the time window
func (s State) Visible() []types.Reading {
	return filter(s.Records, s.TimeWindow)
}

// Summary backs the "showing X of Y" line
type Summary struct {
	Shown int `json:"shown" yaml:"shown"`
	Total int `json:"total" yaml:"total"`
}

// Summary reports the visible count against the store total, or the loaded count when the total is unknown
func (s State) Summary() Summary {
	total := len(s.Records)
	if s.TotalCount != nil {
		total = *s.TotalCount
	}
	return Summary{Shown: len(s.Visible()), Total: total}
}

// Controller owns the current page of readings. Its methods are safe for
// concurrent use. The lock is never held across store calls.
type Controller struct {
	store   interfaces.ReadingStore
	recs    interfaces.RecommendationService
	opts    Options
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
	tracing *monitoring.TracingManager

	mu              sync.Mutex
	records         []types.Reading
	sortKey         types.SortKey
	page            int
	pageSize        int
	hasMore         bool
	totalCount      *int
	pending         map[int64]struct{}
	window          types.TimeWindow
	submitted       int
	localSeq        int
	recommendations []sitecode.Site
	mode            Mode
	lastErr         error
	generation      uint64

	// confirmed since the latest fetch request was sent
	deletedSince map[int64]struct{}
	createdSince []types.Reading
}

// New creates a controller. When recs is nil and store also serves
// recommendations, store is used for both.
func New(store interfaces.ReadingStore, recs interfaces.RecommendationService, opts Options, log *logger.Logger, metrics *monitoring.MetricsCollector) *Controller {
	if recs == nil {
		recs, _ = store.(interfaces.RecommendationService)
	}
	if !types.ValidPageSize(opts.PageSize) {
		opts.PageSize = types.DefaultPageSize
	}
	if !opts.SortKey.Valid() {
		opts.SortKey = types.DefaultSortKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Controller{
		store:    store,
		recs:     recs,
		opts:     opts,
		logger:   log,
		metrics:  metrics,
		tracing:  monitoring.NewTracingManager("glucose-collection"),
		sortKey:  opts.SortKey,
		page:     types.DefaultPage,
		pageSize: opts.PageSize,
		pending:  make(map[int64]struct{}),
		mode:     ModeIdle,

		deletedSince: make(map[int64]struct{}),
	}
}

// Refresh fetches the current page with the current parameters
func (c *Controller) Refresh(ctx context.Context) error {
	return c.fetch(ctx, "refresh", func() error { return nil })
}

// SetSort changes the ordering and returns to the first page
func (c *Controller) SetSort(ctx context.Context, key types.SortKey) error {
	if !key.Valid() {
		return types.NewValidationError(types.ErrCodeInvalidInput, "unsupported sort key", map[string]interface{}{
			"sort_by": string(key),
		})
	}
	return c.fetch(ctx, "set_sort", func() error {
		c.sortKey = key
		c.page = types.DefaultPage
		return nil
	})
}

// SetPage moves to page n. Moving forward requires the current page to be full.
func (c *Controller) SetPage(ctx context.Context, n int) error {
	return c.fetch(ctx, "set_page", func() error {
		if n < 1 || (n >= c.page && !c.hasMore) {
			return types.NewValidationError(types.ErrCodeInvalidInput, "page is not reachable", map[string]interface{}{
				"page":     n,
				"current":  c.page,
				"has_more": c.hasMore,
			})
		}
		c.page = n
		return nil
	})
}

// SetPageSize changes the page size and returns to the first page
func (c *Controller) SetPageSize(ctx context.Context, n int) error {
	if !types.ValidPageSize(n) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "unsupported page size", map[string]interface{}{
			"size":    n,
			"allowed": types.AllowedPageSizes,
		})
	}
	return c.fetch(ctx, "set_page_size", func() error {
		c.pageSize = n
		c.page = types.DefaultPage
		return nil
	})
}

// SetTimeWindow sets the local filter. Nil bounds are open and both bounds are inclusive.
func (c *Controller) SetTimeWindow(start, end *time.Time) error {
	if start != nil && end != nil && start.After(*end) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "window start is after its end", map[string]interface{}{
			"start": start.Format(time.RFC3339Nano),
			"end":   end.Format(time.RFC3339Nano),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = types.TimeWindow{Start: copyTime(start), End: copyTime(end)}
	return nil
}

// fetch applies prepare under the lock, then lists the resulting page. Only
// the response to the latest request is applied; older ones return a stale error.
func (c *Controller) fetch(ctx context.Context, trigger string, prepare func() error) error {
	c.mu.Lock()
	if err := prepare(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.generation++
	gen := c.generation
	c.deletedSince = make(map[int64]struct{})
	c.createdSince = nil
	query := &types.ListQuery{SortBy: c.sortKey, Page: c.page, Size: c.pageSize}
	c.mode = ModeFetching
	c.mu.Unlock()

	ctx, span := c.tracing.StartSpan(ctx, "collection.fetch",
		attribute.String("trigger", trigger),
		attribute.Int64("generation", int64(gen)),
		attribute.String("sort_by", string(query.SortBy)),
		attribute.Int("page", query.Page),
		attribute.Int("size", query.Size),
	)
	defer span.End()

	start := time.Now()
	page, err := c.listEntries(ctx, query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.metrics.RecordStaleResponse()
		c.logger.WithFields(map[string]interface{}{
			"component":  "collection",
			"generation": gen,
			"latest":     c.generation,
		}).Debug("Discarding stale fetch response")
		return types.NewStaleError(gen, c.generation)
	}

	if err != nil {
		monitoring.RecordError(span, err)
		c.mode = ModeFetchFailed
		c.lastErr = err
		c.logger.WithError(err).WithField("trigger", trigger).Warn("Fetch failed, keeping previous records")
		return err
	}

	records := c.normalize(page.Items, gen)
	c.hasMore = len(records) >= c.pageSize
	c.records = c.reconcile(records)
	c.totalCount = page.Total
	c.mode = ModeReady
	c.lastErr = nil

	c.logger.Performance("collection.fetch", time.Since(start).Milliseconds(), map[string]interface{}{
		"trigger":  trigger,
		"records":  len(c.records),
		"has_more": c.hasMore,
	})
	return nil
}

func (c *Controller) listEntries(ctx context.Context, query *types.ListQuery) (*types.EntryPage, error) {
	callCtx, cancel := c.bounded(ctx)
	defer cancel()

	page, err := c.store.ListEntries(callCtx, query)
	if err != nil {
		return nil, classify("list entries", callCtx, err)
	}
	if page == nil {
		page = &types.EntryPage{}
	}
	return page, nil
}

// normalize converts a batch and keeps ids unique within it. Called with c.mu held.
func (c *Controller) normalize(items []types.WirePayload, gen uint64) []types.Reading {
	records := reading.NormalizeAll(items, gen, c.opts.Now())

	seen := make(map[int64]struct{}, len(records))
	for i := range records {
		if raw, bad := reading.UndecodableSite(items[i]); bad {
			c.logger.WithFields(map[string]interface{}{
				"component": "collection",
				"site":      raw,
				"index":     i,
			}).Warn("Ignoring undecodable puncture site")
		}
		if _, dup := seen[records[i].ID]; dup {
			c.logger.WithField("id", records[i].ID).Warn("Duplicate id in page, assigning synthetic id")
			records[i].ID = reading.SyntheticID(gen, i)
		}
		seen[records[i].ID] = struct{}{}
	}
	return records
}

// reconcile applies deletes and creates confirmed while the fetch was in
// flight, which the response may predate. Called with c.mu held.
func (c *Controller) reconcile(records []types.Reading) []types.Reading {
	if len(c.deletedSince) == 0 && len(c.createdSince) == 0 {
		return records
	}

	kept := make([]types.Reading, 0, len(records)+len(c.createdSince))
	present := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if _, gone := c.deletedSince[r.ID]; gone {
			continue
		}
		present[r.ID] = struct{}{}
	}

	// newest create first, as CreateRecord inserts at the head
	for i := len(c.createdSince) - 1; i >= 0; i-- {
		created := c.createdSince[i]
		if _, ok := present[created.ID]; ok {
			continue
		}
		if _, gone := c.deletedSince[created.ID]; gone {
			continue
		}
		present[created.ID] = struct{}{}
		kept = append(kept, created)
	}
	for _, r := range records {
		if _, gone := c.deletedSince[r.ID]; !gone {
			kept = append(kept, r)
		}
	}
	return kept
}

// DeleteRecord deletes a reading. A delete of an id that is already in flight
// is suppressed and reports issued=false with a nil error.
func (c *Controller) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	if id < 0 {
		return false, types.NewValidationError(types.ErrCodeInvalidInput, "record has no store id", map[string]interface{}{
			"id": id,
		})
	}

	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		c.mu.Unlock()
		c.logger.WithField("id", id).Debug("Delete already pending")
		return false, nil
	}
	c.pending[id] = struct{}{}
	c.mu.Unlock()

	ctx, span := c.tracing.StartSpan(ctx, "collection.delete", attribute.Int64("entry_id", id))
	defer span.End()

	callCtx, cancel := c.bounded(ctx)
	err := c.store.DeleteEntry(callCtx, id)
	if err != nil {
		err = classify("delete entry", callCtx, err)
	}
	cancel()

	c.mu.Lock()
	delete(c.pending, id)
	if err != nil {
		c.mu.Unlock()
		monitoring.RecordError(span, err)
		c.logger.WithError(err).WithField("id", id).Warn("Delete failed, record kept")
		return true, err
	}
	c.records = removeID(c.records, id)
	c.deletedSince[id] = struct{}{}
	refresh := c.opts.RefreshAfterDelete
	c.mu.Unlock()

	c.metrics.RecordReading("deleted")
	c.logger.WithField("id", id).Info("Reading deleted")

	if refresh {
		if err := c.Refresh(ctx); err != nil && !types.IsStale(err) {
			c.logger.WithError(err).Warn("Refresh after delete failed")
		}
	}
	return true, nil
}

// CreateRecord validates input locally, submits it and inserts the
// acknowledged reading at the head of the page. Nothing changes on failure.
func (c *Controller) CreateRecord(ctx context.Context, input types.DraftInput) (types.Reading, error) {
	draft, err := reading.ParseDraft(input, c.opts.Now())
	if err != nil {
		return types.Reading{}, err
	}
	payload := reading.ToSubmissionPayload(draft)

	ctx, span := c.tracing.StartSpan(ctx, "collection.create", attribute.Float64("value", draft.GlucoseValue))
	defer span.End()

	callCtx, cancel := c.bounded(ctx)
	echo, err := c.store.CreateEntry(callCtx, &payload)
	if err != nil {
		err = classify("create entry", callCtx, err)
	}
	cancel()
	if err != nil {
		monitoring.RecordError(span, err)
		c.logger.WithError(err).Warn("Create failed")
		return types.Reading{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := reading.ServerID(echo)
	if !ok {
		c.localSeq++
		id = reading.LocalID(c.generation, c.localSeq)
	}
	created := reading.FromDraft(draft, id)

	records := make([]types.Reading, 0, len(c.records)+1)
	records = append(records, created)
	records = append(records, removeID(c.records, id)...)
	c.records = records
	c.createdSince = append(c.createdSince, created)
	c.submitted++

	c.metrics.RecordReading("created")
	c.logger.WithFields(map[string]interface{}{
		"id":        id,
		"value":     created.GlucoseValue,
		"submitted": c.submitted,
	}).Info("Reading created")
	return created, nil
}

// LoadRecommendations fetches the preferred puncture sites. On failure the
// recommendation set is emptied and the error returned.
func (c *Controller) LoadRecommendations(ctx context.Context) ([]sitecode.Site, error) {
	if c.recs == nil {
		return []sitecode.Site{}, types.NewInternalError(types.ErrCodeInternalError, "no recommendation service configured", nil)
	}

	ctx, span := c.tracing.StartSpan(ctx, "collection.recommendations")
	defer span.End()

	callCtx, cancel := c.bounded(ctx)
	codes, err := c.recs.RecommendedSpots(callCtx)
	if err != nil {
		err = classify("recommended spots", callCtx, err)
	}
	cancel()

	if err != nil {
		monitoring.RecordError(span, err)
		c.logger.WithError(err).Warn("Loading recommendations failed")
		c.mu.Lock()
		c.recommendations = nil
		c.mu.Unlock()
		return []sitecode.Site{}, err
	}

	sites := make([]sitecode.Site, 0, len(codes))
	for _, code := range codes {
		site, err := sitecode.Decode(code)
		if err != nil {
			c.logger.WithField("site", code).Warn("Skipping undecodable recommended site")
			continue
		}
		sites = append(sites, site)
	}

	c.mu.Lock()
	c.recommendations = sites
	c.mu.Unlock()

	return append([]sitecode.Site(nil), sites...), nil
}

// Visible returns the loaded records inside the time window, in page order
func (c *Controller) Visible() []types.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return filter(c.records, c.window)
}

// Summary reports how many records are shown out of the known total
func (c *Controller) Summary() Summary {
	return c.State().Summary()
}

// Mode returns the current fetch mode
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Err returns the failure that put the controller in ModeFetchFailed, if any
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsPending reports whether a delete for id is in flight
func (c *Controller) IsPending(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// State returns a copy of the controller state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]int64, 0, len(c.pending))
	for id := range c.pending {
		pending = append(pending, id)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	var total *int
	if c.totalCount != nil {
		t := *c.totalCount
		total = &t
	}

	return State{
		Records:         append([]types.Reading(nil), c.records...),
		SortKey:         c.sortKey,
		Page:            c.page,
		PageSize:        c.pageSize,
		HasMore:         c.hasMore,
		TotalCount:      total,
		PendingDeletes:  pending,
		TimeWindow:      types.TimeWindow{Start: copyTime(c.window.Start), End: copyTime(c.window.End)},
		SubmittedCount:  c.submitted,
		Recommendations: append([]sitecode.Site(nil), c.recommendations...),
		Mode:            c.mode,
		Err:             c.lastErr,
	}
}

func (c *Controller) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// classify maps store failures onto the error taxonomy. Errors that are
// already typed pass through.
func classify(op string, callCtx context.Context, err error) error {
	var te *types.TrackerError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return types.NewTimeoutError(op+" timed out", err)
	}
	return types.NewTransportError(types.ErrCodeTransport, op+" failed", err)
}

func filter(records []types.Reading, window types.TimeWindow) []types.Reading {
	visible := make([]types.Reading, 0, len(records))
	for _, r := range records {
		if window.Contains(r.Timestamp) {
			visible = append(visible, r)
		}
	}
	return visible
}

func removeID(records []types.Reading, id int64) []types.Reading {
	kept := make([]types.Reading, 0, len(records))
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return kept
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
