package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/medrex/glucose-tracker/internal/collection"
	"github.com/medrex/glucose-tracker/internal/presenter"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/medrex/glucose-tracker/pkg/reading"
	"github.com/medrex/glucose-tracker/pkg/sitecode"
	"github.com/medrex/glucose-tracker/pkg/sitelayout"
	"github.com/medrex/glucose-tracker/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type listFlags struct {
	sort string
	page int
	size int
	from string
	to   string
}

func (a *app) listCmd() *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of readings",
		Long: `Fetches a page of readings from the store in the chosen order.

--from and --to narrow the shown rows to a time range on the loaded page
only. Times are RFC 3339 or "YYYY-MM-DDTHH:MM" in local time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.loadPage(cmd, f)
			if err != nil {
				return err
			}
			return presenter.Render(a.out, a.format, presenter.NewView(ctrl.State()))
		},
	}
	addListFlags(cmd, &f)
	return cmd
}

func addListFlags(cmd *cobra.Command, f *listFlags) {
	cmd.Flags().StringVar(&f.sort, "sort", "", "order: time-asc, time-desc, value-asc or value-desc")
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.size, "size", 0, "page size: 5, 10 or 20")
	cmd.Flags().StringVar(&f.from, "from", "", "show readings at or after this time")
	cmd.Flags().StringVar(&f.to, "to", "", "show readings at or before this time")
}

// listOptions merges list flags over the configured defaults
func (a *app) listOptions(f listFlags) (collection.Options, error) {
	opts := collection.OptionsFromConfig(a.cfg)
	if f.sort != "" {
		key := types.SortKey(f.sort)
		if !key.Valid() {
			return opts, fmt.Errorf("unsupported sort %q", f.sort)
		}
		opts.SortKey = key
	}
	if f.size != 0 {
		if !types.ValidPageSize(f.size) {
			return opts, fmt.Errorf("unsupported page size %d (allowed %v)", f.size, types.AllowedPageSizes)
		}
		opts.PageSize = f.size
	}
	if f.page < 1 {
		return opts, fmt.Errorf("page must be at least 1")
	}
	return opts, nil
}

// loadPage fetches the first page and walks forward to the requested one
func (a *app) loadPage(cmd *cobra.Command, f listFlags) (*collection.Controller, error) {
	opts, err := a.listOptions(f)
	if err != nil {
		return nil, err
	}
	start, err := parseBound("from", f.from)
	if err != nil {
		return nil, err
	}
	end, err := parseBound("to", f.to)
	if err != nil {
		return nil, err
	}

	ctrl := a.controller(opts)
	if err := ctrl.SetTimeWindow(start, end); err != nil {
		return nil, err
	}
	if err := ctrl.Refresh(cmd.Context()); err != nil {
		return nil, err
	}
	for p := 2; p <= f.page; p++ {
		if err := ctrl.SetPage(cmd.Context(), p); err != nil {
			if types.IsValidation(err) {
				return nil, fmt.Errorf("page %d is past the last page", f.page)
			}
			return nil, err
		}
	}
	return ctrl, nil
}

func parseBound(name, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, ok := reading.ParseTimestamp(raw)
	if !ok {
		return nil, fmt.Errorf("invalid --%s time %q", name, raw)
	}
	return &t, nil
}

func (a *app) addCmd() *cobra.Command {
	var input types.DraftInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Log a new reading",
		Example: `  glucose add --value 112 --note "before breakfast" --site L2R
  glucose add --value 98 --at 2024-03-01T07:30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.controller(collection.OptionsFromConfig(a.cfg))
			created, err := ctrl.CreateRecord(cmd.Context(), input)
			if err != nil {
				return err
			}

			state := ctrl.State()
			if a.format != presenter.FormatTable {
				return presenter.Render(a.out, a.format, presenter.NewView(state))
			}
			fmt.Fprintf(a.out, "Added reading %d: %s at %s\n", created.ID,
				strconv.FormatFloat(created.GlucoseValue, 'f', -1, 64),
				created.Timestamp.Local().Format(presenter.TimeLayout))
			fmt.Fprintln(a.out, presenter.SubmittedLine(state.SubmittedCount))
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Value, "value", "", "glucose value (required)")
	cmd.Flags().StringVar(&input.Note, "note", "", "free text note")
	cmd.Flags().StringVar(&input.DateTime, "at", "", "when the reading was taken (default now)")
	cmd.Flags().StringVar(&input.Site, "site", "", "puncture site code such as L1L")
	cmd.MarkFlagRequired("value")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete readings by id",
		Long:  "Deletes the given readings concurrently. Repeated ids are only sent once.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q", arg)
				}
				ids = append(ids, id)
			}

			ctrl := a.controller(collection.OptionsFromConfig(a.cfg))
			results := make([]string, len(ids))
			errs := make([]error, len(ids))

			var g errgroup.Group
			for i, id := range ids {
				g.Go(func() error {
					issued, err := ctrl.DeleteRecord(cmd.Context(), id)
					switch {
					case err != nil:
						errs[i] = err
						results[i] = fmt.Sprintf("%d: %v", id, err)
					case !issued:
						results[i] = fmt.Sprintf("%d: already being deleted", id)
					default:
						results[i] = fmt.Sprintf("%d: deleted", id)
					}
					return nil
				})
			}
			g.Wait()

			for _, line := range results {
				fmt.Fprintln(a.out, line)
			}

			n := 0
			for _, err := range errs {
				if err != nil {
					n++
				}
			}
			if n > 0 {
				return fmt.Errorf("%d of %d deletes failed", n, len(ids))
			}
			return nil
		},
	}
}

func (a *app) sitesCmd() *cobra.Command {
	var (
		withRecommendations bool
		handName, sideName  string
	)
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Show the puncture site targets on the hand images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, err := siteFilter(handName, sideName)
			if err != nil {
				return err
			}

			var recommended []sitecode.Site
			if withRecommendations {
				sites, err := a.controller(collection.OptionsFromConfig(a.cfg)).LoadRecommendations(cmd.Context())
				if err != nil {
					a.log.WithError(err).Warn("Showing sites without recommendations")
				}
				recommended = sites
			}

			targets, err := presenter.SiteTargets(sitelayout.New(a.cfg.Layout.SideOffset), recommended)
			if err != nil {
				return err
			}
			shown := targets[:0]
			for _, t := range targets {
				if keep(t) {
					shown = append(shown, t)
				}
			}
			return presenter.RenderSites(a.out, a.format, shown)
		},
	}
	cmd.Flags().BoolVar(&withRecommendations, "recommended", false, "mark the sites the store recommends")
	cmd.Flags().StringVar(&handName, "hand", "", "only show one hand: left or right")
	cmd.Flags().StringVar(&sideName, "side", "", "only show one side: left or right")
	return cmd
}

// siteFilter builds a predicate from optional hand and side names
func siteFilter(handName, sideName string) (func(presenter.SiteTarget) bool, error) {
	var hand, side string
	if handName != "" {
		h, err := sitecode.ParseHand(handName)
		if err != nil {
			return nil, err
		}
		hand = h.String()
	}
	if sideName != "" {
		s, err := sitecode.ParseSide(sideName)
		if err != nil {
			return nil, err
		}
		side = s.String()
	}
	return func(t presenter.SiteTarget) bool {
		return (hand == "" || t.Hand == hand) && (side == "" || t.Side == side)
	}, nil
}

func (a *app) recommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Show the puncture sites to use next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := a.controller(collection.OptionsFromConfig(a.cfg)).LoadRecommendations(cmd.Context())
			if err != nil {
				return err
			}

			codes := make([]string, 0, len(sites))
			for _, s := range sites {
				codes = append(codes, s.String())
			}
			if a.format == presenter.FormatTable {
				fmt.Fprintln(a.out, strings.Join(codes, "\n"))
				return nil
			}
			return presenter.Render(a.out, a.format, presenter.View{Recommendations: codes})
		},
	}
}

func (a *app) dashboardCmd() *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show a page of readings together with site recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.listOptions(f)
			if err != nil {
				return err
			}
			ctrl := a.controller(opts)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return ctrl.Refresh(ctx)
			})
			g.Go(func() error {
				if _, err := ctrl.LoadRecommendations(ctx); err != nil {
					a.log.WithError(err).Warn("Recommendations unavailable")
				}
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}

			return presenter.Render(a.out, a.format, presenter.NewView(ctrl.State()))
		},
	}
	cmd.Flags().StringVar(&f.sort, "sort", "", "order: time-asc, time-desc, value-asc or value-desc")
	cmd.Flags().IntVar(&f.size, "size", 0, "page size: 5, 10 or 20")
	f.page = 1
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the reading store is up and serving entries",
		Long: `Calls the store's health endpoint and lists one page of entries.
Exits non-zero when either check is unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := a.storeHealth().CheckHealth(cmd.Context())
			if err := presenter.RenderHealth(a.out, a.format, report); err != nil {
				return err
			}
			if report.Status == monitoring.HealthStatusUnhealthy {
				return fmt.Errorf("store is unhealthy")
			}
			return nil
		},
	}
}

func (a *app) storeHealth() *monitoring.HealthManager {
	timeout := a.cfg.Store.RequestTimeout()
	health := monitoring.NewHealthManager("glucose-cli")
	health.SetTimeout(timeout)

	healthURL := strings.TrimRight(a.client.BaseURL(), "/") + a.cfg.Monitoring.HealthPath
	health.RegisterChecker("store", monitoring.NewHTTPHealthChecker(healthURL, timeout))
	health.RegisterChecker("entries_api", monitoring.CheckerFunc(func(ctx context.Context) monitoring.HealthCheck {
		page, err := a.client.ListEntries(ctx, &types.ListQuery{SortBy: types.DefaultSortKey, Page: types.DefaultPage, Size: types.DefaultPageSize})
		if err != nil {
			return monitoring.HealthCheck{Status: monitoring.HealthStatusUnhealthy, Message: err.Error()}
		}
		check := monitoring.HealthCheck{
			Status:  monitoring.HealthStatusHealthy,
			Message: "entries listed",
			Details: map[string]interface{}{"returned": len(page.Items)},
		}
		if page.Total == nil {
			check.Status = monitoring.HealthStatusDegraded
			check.Message = "total count header missing"
		} else {
			check.Details["total"] = *page.Total
		}
		return check
	}))
	return health
}
