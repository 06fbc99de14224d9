package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/hylla/lcarev/internal/adapters/storage/sqlite"
	"github.com/hylla/lcarev/internal/app"
	"github.com/hylla/lcarev/internal/config"
	"github.com/hylla/lcarev/internal/platform"
	"github.com/spf13/cobra"
)

// version stores the build version; release builds override it with -ldflags.
var version = "dev"

// main handles main.
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes args against it.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions carries the global flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	quiet      bool
	stdout     io.Writer
	stderr     io.Writer
	now        func() time.Time
}

// newRootCommand wires the global flags and every subcommand.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr, now: time.Now}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("LCAREV_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	appName := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("LCAREV_APP_NAME")); envApp != "" {
		appName = envApp
	}

	root := &cobra.Command{
		Use:   "lcarev",
		Short: "Revisioned life cycle inventory records",
		Long: `lcarev stores activities, exchanges and impact methods in a local sqlite
database and records every change as a revision holding only the deltas.
Revision chains can be exported and replayed on another copy of the data.`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "keep runtime logs off stderr (dev log file still receives them)")

	root.AddCommand(
		newPathsCommand(opts),
		newActivityCommand(opts),
		newExchangeCommand(opts),
		newMethodCommand(opts),
		newLogCommand(opts),
		newRevisionCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
	)
	return root
}

// newPathsCommand prints the resolved runtime locations.
func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show resolved config, data and log paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

// paths resolves per-app locations from the global flags.
func (o *rootOptions) paths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// runtimeEnv is one opened command runtime.
type runtimeEnv struct {
	cfg    config.Config
	logger *runtimeLogger
	repo   *sqlite.Repository
	svc    *app.Service
}

// Close releases the repository and the dev log file.
func (r *runtimeEnv) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.repo != nil {
		errs = append(errs, r.repo.Close())
	}
	if r.logger != nil {
		errs = append(errs, r.logger.Close())
	}
	return errors.Join(errs...)
}

// open resolves config, logging and storage, then builds the revision service.
func (o *rootOptions) open(command string) (*runtimeEnv, error) {
	paths, err := o.paths()
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(o.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("LCAREV_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(o.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("LCAREV_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(o.stderr, o.appName, o.devMode, cfg.Logging, paths.LogDir, o.now)
	if err != nil {
		return nil, err
	}
	logger.SetConsoleEnabled(!o.quiet)
	env := &runtimeEnv{cfg: cfg, logger: logger}
	logger.Info(
		"startup configuration resolved",
		"command", command,
		"app", o.appName,
		"dev_mode", o.devMode,
		"config_path", configPath,
		"db_path", cfg.Database.Path,
		"head", cfg.Revisions.Head,
		"log_level", cfg.Logging.Level,
	)
	if devLogPath := logger.DevLogPath(); devLogPath != "" {
		logger.Info("dev file logging enabled", "path", devLogPath)
	}

	logger.Info("opening sqlite repository", "path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "path", cfg.Database.Path, "err", err)
		_ = env.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	env.repo = repo
	logger.Debug("sqlite repository ready", "path", cfg.Database.Path)

	gen, err := cfg.Revisions.Generator()
	if err != nil {
		_ = env.Close()
		return nil, fmt.Errorf("revision id generator: %w", err)
	}
	svc, err := app.NewService(repo, gen, o.now, app.ServiceConfig{
		Head:           cfg.Revisions.Head,
		DefaultAuthors: cfg.Revisions.DefaultAuthors,
		Workers:        cfg.Revisions.Workers,
		Logger:         logger,
	})
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	env.svc = svc
	return env, nil
}

// withRuntime opens a runtime for one command flow and logs its outcome.
func (o *rootOptions) withRuntime(command string, fn func(*runtimeEnv) error) (err error) {
	env, err := o.open(command)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := env.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close runtime: %w", closeErr)
		}
	}()

	env.logger.Debug("command flow start", "command", command)
	if err := fn(env); err != nil {
		env.logger.Error("command flow failed", "command", command, "err", err)
		return err
	}
	env.logger.Debug("command flow complete", "command", command)
	return nil
}

// parseBoolEnv parses a boolean environment variable, reporting whether it was set.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
