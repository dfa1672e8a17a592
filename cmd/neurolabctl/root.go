package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"neurolab/internal/config"
	"neurolab/internal/logging"
	"neurolab/pkg/neurolab"
)

// rootOptions holds the global flags and the configuration they resolve to.
type rootOptions struct {
	configPath   string
	storeKind    string
	dbPath       string
	workers      int
	logLevel     string
	logFormat    string
	artifactsDir string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "neurolabctl",
		Short: "Build, run and inspect NeuroLib networks",
		Long: `neurolabctl creates, steps and inspects networks of nodes, links and
oscillators stored in the NeuroLib binary format.

Runs and snapshots are kept in the configured store. Use the sqlite or
badger store to keep them between invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "neurolab.yaml", "config file (yaml)")
	flags.StringVar(&opts.storeKind, "store", "", "store backend: memory|sqlite|badger")
	flags.StringVar(&opts.dbPath, "db-path", "", "sqlite database file or badger directory")
	flags.IntVar(&opts.workers, "workers", 0, "step workers (0 selects GOMAXPROCS)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text|json")
	flags.StringVar(&opts.artifactsDir, "artifacts-dir", "", "directory for run artifacts")

	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newNewCommand(opts))
	cmd.AddCommand(newInfoCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newDumpCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newRunsCommand(opts))
	return cmd
}

// load reads the config file and lets explicitly set flags override it.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Kind = o.storeKind
	}
	if flags.Changed("db-path") {
		cfg.Store.Path = o.dbPath
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if flags.Changed("artifacts-dir") {
		cfg.ArtifactsDir = o.artifactsDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		Component: "neurolabctl",
	})
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

// client opens the configured store. Callers close it.
func (o *rootOptions) client(cmd *cobra.Command) (*neurolab.Client, error) {
	client, err := neurolab.New(neurolab.Options{
		StoreKind:    o.cfg.Store.Kind,
		DBPath:       o.cfg.Store.Path,
		ArtifactsDir: o.cfg.ArtifactsDir,
		Workers:      o.cfg.Workers,
		Logger:       o.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(cmd.Context()); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
