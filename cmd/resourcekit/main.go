package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"resourcekit/internal/app"
	"resourcekit/internal/config"
	"resourcekit/internal/logging"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

const shutdownTimeout = 10 * time.Second

// command is one resourcekit subcommand.
type command struct {
	summary string
	// connect reports whether the run needs a database handle.
	connect func(fs *pflag.FlagSet) bool
	define  func(fs *pflag.FlagSet)
	run     func(ctx context.Context, a *app.App, fs *pflag.FlagSet, stdout io.Writer) error
}

var commands = map[string]command{
	"compile":  compileCommand,
	"sync":     syncCommand,
	"describe": describeCommand,
}

var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errUsage) {
			slog.Error("resourcekit error", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errUsage
	}
	name := args[0]
	switch name {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "resourcekit %s (%s)\n", Version, Commit)
		return nil
	case "help", "--help", "-h":
		printUsage(stdout)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		printUsage(stderr)
		return errUsage
	}

	fs := pflag.NewFlagSet("resourcekit "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Bool("version", false, "Print version and exit")
	config.DefineFlags(fs)
	cmd.define(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Fprintf(stdout, "resourcekit %s (%s)\n", Version, Commit)
		return nil
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger, loggerProvider, err := app.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger = logger.WithRunID(uuid.NewString()).WithFields(slog.String("command", name))

	a, err := app.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown failed", slog.String("error", err.Error()))
		}
	}()

	ctx = logging.WithLogger(ctx, logger)
	if err := a.Init(ctx, cmd.connect(fs)); err != nil {
		return err
	}
	return cmd.run(ctx, a, fs, stdout)
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("usage: resourcekit <command> [flags]\n\ncommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-10s %s\n", name, commands[name].summary)
	}
	b.WriteString("  version    Print version and exit\n")
	b.WriteString("\nRun 'resourcekit <command> --help' for command flags.\n")
	fmt.Fprint(w, b.String())
}
