package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaji/postgres-language-server/internal/config"
	"github.com/skaji/postgres-language-server/internal/ls"
	"github.com/skaji/postgres-language-server/internal/metrics"
	"github.com/skaji/postgres-language-server/internal/session"
	"github.com/skaji/postgres-language-server/internal/source"
)

type options struct {
	configPath  string
	logLevel    string
	db          string
	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "postgres-language-server",
		Short: "A SQL language server backed by a live database schema",
		Long: `postgres-language-server speaks the Language Server Protocol on stdio.

It reports syntax errors, warns about unknown relations, shows table
comments on hover and executes statements against the configured database.
The schema is reloaded when the database sends NOTIFY postgres_lsp, 'reload schema'.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	rootCmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file path")
	rootCmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&opts.db, "db", "", "Database connection string")
	rootCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ls.ServerName, ls.Version)
		},
	})
	return rootCmd
}

// loadConfig reads the config file and applies the command line flags on
// top of it. The returned path is empty when no file should be watched.
func loadConfig(opts options) (*config.Config, string, error) {
	path := opts.configPath
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return config.DefaultConfig(), "", nil
		}
		path = defaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if opts.db != "" {
		cfg.DBConnectionString = opts.db
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if _, err := config.ParseLevel(cfg.LogLevel); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func run(ctx context.Context, opts options) error {
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := session.New(session.WithSourceOptions(source.WithCloseTimeout(cfg.CloseTimeout)))
	server := ls.New(sess)
	server.SetDefaultDatabase(cfg.DBConnectionString)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	// --db pins the database, so edits to the file only matter without it.
	if path != "" && opts.db == "" {
		watcher, err := config.NewWatcher(path, func(cfg *config.Config) {
			server.SetDefaultDatabase(cfg.DBConnectionString)
		})
		if err != nil {
			slog.Debug("config file not watched", "path", path, "error", err)
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	if err := server.RunStdio(); err != nil {
		slog.Error("server failed", "error", err)
		return err
	}
	return nil
}
