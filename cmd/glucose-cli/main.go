package main

import (
	"fmt"
	"io"
	"os"

	"github.com/medrex/glucose-tracker/internal/collection"
	"github.com/medrex/glucose-tracker/internal/presenter"
	"github.com/medrex/glucose-tracker/internal/store"
	"github.com/medrex/glucose-tracker/pkg/config"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	storeURL   string
	logLevel   string
	output     string

	cfg     *config.Config
	log     *logger.Logger
	metrics *monitoring.MetricsCollector
	format  presenter.Format
	client  *store.Client
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "glucose",
		Short: "Log and browse blood glucose readings",
		Long: `glucose talks to a reading store and keeps a paged, sorted view of
your blood glucose readings. Readings carry an optional finger puncture
site, and the store suggests which site to use next.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default searches ./config.yaml)")
	flags.StringVar(&a.storeURL, "store", "", "reading store base URL")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")

	root.AddCommand(
		a.listCmd(),
		a.addCmd(),
		a.deleteCmd(),
		a.sitesCmd(),
		a.recommendCmd(),
		a.dashboardCmd(),
		a.statusCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return err
	}
	if a.storeURL != "" {
		cfg.Store.BaseURL = a.storeURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	format, err := presenter.ParseFormat(a.output)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.format = format
	a.log = logger.NewWithOutput(cfg.LogLevel, a.errOut)
	a.metrics = monitoring.NewMetricsCollector("glucose-cli")

	a.client, err = store.NewClient(cfg.Store, a.log, a.metrics)
	if err != nil {
		return fmt.Errorf("invalid store: %w", err)
	}
	return nil
}

func (a *app) controller(opts collection.Options) *collection.Controller {
	return collection.New(a.client, nil, opts, a.log, a.metrics)
}
