package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rowjay/mybak/internal/app"
	"github.com/rowjay/mybak/internal/config"
	"github.com/rowjay/mybak/internal/lineage"
	"github.com/rowjay/mybak/internal/logging"
	"github.com/rowjay/mybak/internal/notify"
	"github.com/rowjay/mybak/internal/storage"
	"github.com/rowjay/mybak/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	Mode            string
	Dir             string
	Keep            int
	Weekday         int
	MyCnf           string
	Executor        string
	LogBin          string
	DryRun          bool
	Parallel        int
	CompressThreads int
	TargetDir       string
	DSN             string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:          "mybak",
		Short:        "Weekly full, daily incremental MySQL backups with binlog archival",
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json)")
	pf.StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")
	pf.StringVar(&overrides.Dir, "dir", "", "Backup root directory")
	pf.IntVar(&overrides.Weekday, "weekday", 0, "Day of the weekly full backup, 1 (Monday) to 7 (Sunday)")

	rootCmd.AddCommand(newRunCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newRunCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prune expired artifacts and take the next backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, overrides)
			if err != nil {
				return err
			}
			logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)

			ctx, cancel := runContext(cfg.Global.OperationTimeout)
			defer cancel()

			validator := config.NewValidator()
			if err := validator.Validate(cfg); err != nil {
				logger.Error().Err(err).Msg("invalid configuration")
				return err
			}
			if err := app.ResolveLogBin(ctx, cfg, logger); err != nil {
				logger.Error().Err(err).Msg("binlog discovery failed")
				return err
			}
			if cfg.Backup.RunsLogs() && cfg.Backup.LogBin != "" {
				if err := validator.ValidateLogBin(cfg.Backup.LogBin); err != nil {
					logger.Error().Err(err).Msg("invalid configuration")
					return err
				}
			}
			mirror, err := storage.NewMirror(cfg.Mirror)
			if err != nil {
				return err
			}
			appSvc := app.New(cfg, storage.NewOSLocal(), mirror, logger, notify.FromConfig(cfg.Notifications))
			result, err := appSvc.Run(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("run failed")
				return err
			}
			logger.Info().Str("run_id", result.RunID).Msg("run succeeded")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&overrides.Mode, "mode", "", "What to back up: data, logs or both (0, 1, 2)")
	f.IntVar(&overrides.Keep, "keep", 0, "Retention window in weeks")
	f.StringVar(&overrides.MyCnf, "my-cnf", "", "MySQL option file passed as --defaults-file")
	f.StringVar(&overrides.Executor, "executor", "", "Backup executor name or path (xtrabackup, mariabackup)")
	f.StringVar(&overrides.LogBin, "log-bin", "", "Binlog basename (log_bin_basename)")
	f.BoolVar(&overrides.DryRun, "dry-run", false, "Print intended actions without changing anything")
	f.IntVar(&overrides.Parallel, "parallel", 0, "Executor copy threads")
	f.IntVar(&overrides.CompressThreads, "compress-threads", 0, "zstd encoder threads")
	f.StringVar(&overrides.TargetDir, "target-dir", "", "Executor scratch directory")
	f.StringVar(&overrides.DSN, "dsn", "", "MySQL DSN used to discover log_bin_basename")
	return cmd
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the backup history and the next data backup type",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, overrides)
			if err != nil {
				return err
			}
			logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
			if err := config.NewValidator().ValidateListing(cfg); err != nil {
				logger.Error().Err(err).Msg("invalid configuration")
				return err
			}
			appSvc := app.New(cfg, storage.NewOSLocal(), nil, logger, nil)

			ctx, cancel := runContext(cfg.Global.OperationTimeout)
			defer cancel()
			listing, err := appSvc.List(ctx)
			if err != nil {
				return err
			}
			printListing(cmd, listing)
			return nil
		},
	}
}

func printListing(cmd *cobra.Command, listing *app.Listing) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tDATE\tTYPE\tFROM\tTO\tLOG\tSIZE\tNAME")
	for _, e := range listing.Entries {
		a := e.Artifact
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Kind, a.Date, a.Type, dash(a.FromLSN), dash(a.ToLSN), dash(a.LogName),
			humanize.Bytes(uint64(e.Size)), e.Name)
	}
	_ = w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\nnext data backup: %s", listing.NextDataType)
	if listing.NextDataType == lineage.Incremental {
		fmt.Fprintf(cmd.OutOrStdout(), " (anchor %s)", listing.Anchor)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	if listing.LogTip != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "log tip: %s\n", listing.LogTip)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mybak %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func runContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func loadConfig(cmd *cobra.Command, root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, cfg, root, overrides)
	return cfg, nil
}

// applyOverrides copies explicitly set flags over file and env values.
func applyOverrides(cmd *cobra.Command, cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	changed := cmd.Flags().Changed
	if changed("mode") {
		cfg.Backup.Mode = overrides.Mode
	}
	if changed("dir") {
		cfg.Backup.Dir = overrides.Dir
	}
	if changed("keep") {
		cfg.Backup.KeepWeeks = overrides.Keep
	}
	if changed("weekday") {
		cfg.Backup.Weekday = overrides.Weekday
	}
	if changed("my-cnf") {
		cfg.Backup.MyCnf = overrides.MyCnf
	}
	if changed("executor") {
		cfg.Backup.Executor = overrides.Executor
	}
	if changed("log-bin") {
		cfg.Backup.LogBin = overrides.LogBin
	}
	if changed("dry-run") {
		cfg.Global.DryRun = overrides.DryRun
	}
	if changed("parallel") {
		cfg.Backup.Parallel = overrides.Parallel
	}
	if changed("compress-threads") {
		cfg.Backup.CompressThreads = overrides.CompressThreads
	}
	if changed("target-dir") {
		cfg.Backup.TargetDir = overrides.TargetDir
	}
	if changed("dsn") {
		cfg.Database.DSN = overrides.DSN
	}
}
