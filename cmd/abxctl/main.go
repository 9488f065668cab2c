// Command abxctl administers an antibiotics repository: it installs and
// upgrades the senaite.abx profile, manages antibiotic classes and
// antibiotics, and writes or restores snapshot backups.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"abxcore/internal/backup"
	"abxcore/internal/blob"
	"abxcore/internal/config"
	"abxcore/internal/core"
	"abxcore/internal/logging"
	"abxcore/plugins/abx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	envFile     string
	output      string
	trace       bool
	metricsFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "abxctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "abxctl",
		Short: "Manage antibiotic classes and antibiotics",
		Long: `abxctl administers the antibiotics repository of a laboratory.

Settings come from ABX_* environment variables, optionally seeded from a
.env file. Run "abxctl install" once to provision the setup folders and the
default antibiotic classes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := newPrinter(opts.output, cmd.OutOrStdout())
			return err
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.StringVarP(&opts.output, "output", "o", formatJSON, "output format: json or yaml")
	flags.BoolVar(&opts.trace, "trace", false, "write a JSON span per service operation to stderr")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file on exit")

	root.AddCommand(
		newInstallCmd(opts),
		newUpgradeCmd(opts),
		newUninstallCmd(opts),
		newStatusCmd(opts),
		newSeedCmd(opts),
		newVocabularyCmd(opts),
		newListCmd(opts),
		newAddCmd(opts),
		newEditCmd(opts),
		newActiveCmd(opts, true),
		newActiveCmd(opts, false),
		newDeleteCmd(opts),
		newBackupCmd(opts),
	)
	return root
}

// app is the wired service stack of one abxctl invocation.
type app struct {
	cfg      *config.Config
	zap      *zap.Logger
	log      logging.Adapter
	store    core.PersistentStore
	svc      *core.Service
	registry *prometheus.Registry
	out      *printer
	opts     *rootOptions
}

// openApp loads configuration and opens the repository. Callers must Close
// the returned app.
func openApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	ctx := cmd.Context()
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	z, err := logging.New(logging.Options{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	log := logging.NewAdapter(z).Named("abxctl")

	out, err := newPrinter(opts.output, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return nil, err
	}
	store, err := core.OpenPersistentStore(ctx, cfg.Storage(), core.NewRulesEngine())
	if err != nil {
		_ = z.Sync()
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	svcOpts := []core.Option{
		core.WithLogger(log),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.LoggerAuditRecorder{Logger: log.Named("audit")}),
	}
	if opts.trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}
	log.Debug("repository opened", "driver", cfg.StorageDriver)
	return &app{
		cfg:      cfg,
		zap:      z,
		log:      log,
		store:    store,
		svc:      core.NewService(store, svcOpts...),
		registry: registry,
		out:      out,
		opts:     opts,
	}, nil
}

// plugin returns the antibiotics plugin configured from the environment.
func (a *app) plugin(seed bool) abx.Plugin {
	return abx.New(abx.WithSeedAntibiotics(seed || a.cfg.SeedAntibiotics))
}

// loadPlugin attaches the already installed antibiotics plugin.
func (a *app) loadPlugin(ctx context.Context) error {
	if _, err := a.svc.LoadPlugin(ctx, a.plugin(false)); err != nil {
		return fmt.Errorf("%w (run abxctl install first)", err)
	}
	return nil
}

// backups opens the configured blob store and wraps it in a backup manager.
func (a *app) backups(ctx context.Context) (*backup.Manager, error) {
	store, err := blob.Open(ctx, a.cfg.Blob())
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", a.cfg.BlobDriver, err)
	}
	return backup.NewManager(a.store, store,
		backup.WithKeep(a.cfg.BackupKeep),
		backup.WithLogger(a.log.Named("backup")),
	), nil
}

// Close writes the metrics file, flushes the logger and releases the store.
func (a *app) Close() error {
	var firstErr error
	if a.opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.opts.metricsFile, a.registry); err != nil {
			firstErr = fmt.Errorf("write metrics: %w", err)
		}
	}
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
	}
	_ = a.zap.Sync()
	return firstErr
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), a)
}
