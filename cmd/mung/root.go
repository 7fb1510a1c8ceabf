package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/birdie-ai/mung/config"
	"github.com/birdie-ai/mung/dml"
	"github.com/birdie-ai/mung/event"
	"github.com/birdie-ai/mung/executor"
	"github.com/birdie-ai/mung/service"
	"github.com/birdie-ai/mung/slog"
	"github.com/birdie-ai/mung/store"
	"github.com/birdie-ai/mung/tracing"
	"github.com/birdie-ai/mung/xjson"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownPeriod = 10 * time.Second

type (
	streams struct {
		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer
	}

	options struct {
		database    string
		url         string
		compact     bool
		file        string
		color       string
		keepGoing   bool
		profile     string
		configPath  string
		auditTopic  string
		metricsFile string
		verbose     int
	}
)

func newRootCmd(s streams) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "mung [flags] <COMMAND | ->",
		Short: "Run MongoDB shell commands and stream the results as JSON",
		Long: `mung runs commands written in the MongoDB shell syntax, like

  db.users.find({ age: { $gt: 42 } }, { name: 1 }).limit(2)

and writes each result as JSON to stdout, one value at a time. Commands are read
from the COMMAND argument, from stdin when it is "-", or from --file.
Supported verbs are find, count, distinct, insert, update and remove.

The store is a MongoDB server (mongodb:// URLs) or an embedded SQLite document
store (sqlite:///path/to/file.db or sqlite::memory:).`,
		Example: `  mung 'db.users.count({})'
  mung -c -u sqlite:///tmp/mung.db 'db.users.find().limit(10)'
  cat commands.js | mung --keep-going -`,
		Version:       service.ReadBuildInfo(Version).String(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, o, s, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.database, "dbname", "d", config.DefaultDatabase, "database (env "+config.EnvDatabase+")")
	flags.StringVarP(&o.url, "url", "u", config.DefaultURL, "store URL (env "+config.EnvURL+")")
	flags.BoolVarP(&o.compact, "compact", "c", false, "one JSON value per line (strict JSONL)")
	flags.StringVarP(&o.file, "file", "f", "", "read commands from a local path or a blob URL (file:///..., gs://...)")
	flags.StringVar(&o.color, "color", config.ColorAuto, "auto|always|never, auto colors when stdout is a terminal")
	flags.BoolVar(&o.keepGoing, "keep-going", false, "continue past failing commands, exit with the last error class")
	flags.StringVar(&o.auditTopic, "audit-topic", "", "pubsub topic URL receiving write outcome events (env "+config.EnvAuditTopic+")")
	flags.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus text-format metrics to the path on exit")

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&o.profile, "profile", "", "profile from the config file")
	persistent.StringVar(&o.configPath, "config", "", "config file (default "+config.Path()+")")
	persistent.CountVarP(&o.verbose, "verbose", "v", "increase log verbosity (repeatable)")

	cmd.AddCommand(newAuditCmd(o, s))
	return cmd
}

func runShell(cmd *cobra.Command, o *options, s streams, args []string) (err error) {
	ctx := cmd.Context()
	log, err := newLogger(s.stderr, o.verbose)
	if err != nil {
		return err
	}
	ctx = slog.NewContext(ctx, log)

	settings, err := resolveSettings(cmd, o)
	if err != nil {
		return err
	}
	src, err := openSource(ctx, args, o.file, s.stdin)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	ctx, runID := tracing.StartRun(ctx)
	ctx = tracing.CtxWithDatabase(ctx, settings.Database)
	log = slog.FromCtx(ctx)

	registry := prometheus.NewRegistry()
	executor.MustRegisterMetrics(registry)
	event.MustRegisterMetrics(registry)
	service.MustRegisterMetrics(registry)
	service.SampleBuildInfo(service.ReadBuildInfo(Version))
	if o.metricsFile != "" {
		defer func() {
			if werr := prometheus.WriteToTextfile(o.metricsFile, registry); werr != nil {
				err = errors.Join(err, fmt.Errorf("writing metrics: %w", werr))
			}
		}()
	}

	st, err := store.Open(ctx, settings.URL, settings.Database)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	shutdown := service.NewShutdownHandler(shutdownPeriod)
	shutdown.Add(service.ShutdownFunc(st.Close))
	defer func() {
		if serr := shutdown.Shutdown(); serr != nil {
			err = errors.Join(err, fmt.Errorf("shutting down: %w", serr))
		}
	}()

	runOpts := []executor.RunOption{executor.KeepGoing(o.keepGoing)}
	if settings.AuditTopic != "" {
		auditor, err := event.NewWriteAuditor(ctx, settings.AuditTopic)
		if err != nil {
			return err
		}
		shutdown.Add(auditor)
		runOpts = append(runOpts, executor.WithAuditor(auditor))
	}

	out := bufio.NewWriter(s.stdout)
	enc := xjson.NewEncoder(out,
		xjson.Compact(settings.Compact),
		xjson.Color(useColor(settings.Color, s.stdout)),
	)
	log.Debug("starting run", "run_id", runID, "url", settings.URL, "database", settings.Database)

	reader := dml.NewReader(src, dml.StopOnError(!o.keepGoing))
	summary, err := executor.Run(ctx, reader, st, enc, runOpts...)
	log.Info("run done", "commands", summary.Commands, "failed", summary.Failed, "values", summary.Values)
	return err
}

// resolveSettings applies the flags set on the command line over the config file
// profile and the environment.
func resolveSettings(cmd *cobra.Command, o *options) (config.Settings, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return config.Settings{}, err
	}
	path := o.configPath
	if path == "" {
		path = config.Path()
	}
	f, err := config.LoadFile(path, o.configPath != "")
	if err != nil {
		return config.Settings{}, err
	}
	p, err := f.Profile(o.profile)
	if err != nil {
		return config.Settings{}, err
	}
	settings := config.Resolve(p, os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("url") {
		settings.URL = o.url
	}
	if flags.Changed("dbname") {
		settings.Database = o.database
	}
	if flags.Changed("compact") {
		settings.Compact = o.compact
	}
	if flags.Changed("color") {
		settings.Color = o.color
	}
	if flags.Changed("audit-topic") {
		settings.AuditTopic = o.auditTopic
	}
	if err := config.ValidateColor(settings.Color); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func newLogger(w io.Writer, verbose int) (*slog.Logger, error) {
	cfg, err := slog.LoadConfig("MUNG")
	if err != nil {
		return nil, err
	}
	return slog.NewLogger(w, cfg.Verbose(verbose))
}

func useColor(mode string, w io.Writer) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
