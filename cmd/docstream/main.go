// Command docstream decodes CSV, JSON and JSON-lines record files and sends
// the records to the document API, a PostgreSQL staging table, an Avro or
// Parquet file, or back to the caller as a preview over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/docstream/internal/config"
	"github.com/JonMunkholm/docstream/internal/logging"
	"github.com/JonMunkholm/docstream/internal/metrics"
	"github.com/JonMunkholm/docstream/internal/web"
)

// command is one docstream subcommand.
type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"inspect", "inspect FILE...", runInspect},
	{"upload", "upload FILE...", runUpload},
	{"watch-dir", "watch-dir [-once] DIR", runWatchDir},
	{"stage", "stage FILE...", runStage},
	{"unstage", "unstage BATCH_ID...", runUnstage},
	{"export", "export -format avro|parquet [-compression NAME] -o OUT FILE", runExport},
	{"serve", "serve", runServe},
}

// app carries what every command shares.
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("docstream", flag.ContinueOnError)
	configPath := global.String("config", "", "TOML config file (default $"+config.FileEnv+")")
	envFile := global.String("env", ".env", "dotenv file loaded before the environment is read")
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		usage(global)
		return 2
	}

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(*envFile); err != nil {
		slog.Debug("no .env file found, using environment variables", "file", *envFile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "docstream: unknown command %q\n", name)
		usage(global)
		return 2
	}

	registry := prometheus.NewRegistry()
	a := &app{cfg: cfg, registry: registry, metrics: metrics.New(registry)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, a, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "usage: docstream %s\n", cmd.usage)
			return 2
		}
		slog.Error("command failed", "command", name, "error", err)
		if web.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, web.FormatUserError(err))
		}
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: docstream [-config FILE] [-env FILE] <command> [flags] [args]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %s\n", c.usage)
	}
	fmt.Fprintln(os.Stderr, "\nglobal flags:")
	fs.PrintDefaults()
}
