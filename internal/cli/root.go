// Package cli implements the pagewatch command line.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/FranksOps/pagewatch/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// App carries what every subcommand needs once flags are parsed.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	configPath string
	logLevel   string
	stderr     io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	app := &App{stderr: os.Stderr}

	root := &cobra.Command{
		Use:           "pagewatch",
		Short:         "Monitor web pages and explain what changed",
		Long:          "pagewatch fetches monitored pages, diffs their text against the last crawl and records a plain-language explanation of the change.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default ./pagewatch.yaml or ./config/pagewatch.yaml)")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(app),
		newCrawlCommand(app),
		newHistoryCommand(app),
		newTargetsCommand(app),
	)
	return root
}

// Execute runs the CLI with a context canceled on interrupt.
func Execute(ctx context.Context) error {
	// A missing .env is normal.
	_ = godotenv.Load()
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *App) init(stderr io.Writer) error {
	if stderr != nil {
		a.stderr = stderr
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(a.stderr, opts)
	} else {
		handler = slog.NewTextHandler(a.stderr, opts)
	}

	a.Config = cfg
	a.Logger = slog.New(handler)
	slog.SetDefault(a.Logger)
	return nil
}
