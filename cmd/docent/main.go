// Command docent is the terminal client for the document assistant: a chat
// and voice front end for the assistant backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/docent/internal/app"
	"github.com/MrWong99/docent/internal/archive"
	"github.com/MrWong99/docent/internal/config"
	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/pkg/audio"
	"github.com/MrWong99/docent/pkg/audio/malgo"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults plus environment when empty)")
	noUI := flag.Bool("no-ui", false, "run headless: start the voice session and log the conversation")
	history := flag.String("history", "", `print archived chat: "list" for session ids, or a session id`)
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("docent", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "docent: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "docent: %v\n", err)
		}
		return 1
	}
	if *noUI {
		disabled := false
		cfg.UI.Enabled = &disabled
		if cfg.Telemetry.LogFile == config.DefaultLogFile {
			cfg.Telemetry.LogFile = ""
		}
	}

	if *history != "" {
		return printHistory(cfg.Archive.Path, *history)
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logOut, closeLog, err := openLogOutput(cfg.Telemetry.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docent: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(newLogger(logOut, cfg.Telemetry.LogLevel))

	slog.Info("docent starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.Backend.BaseURL,
		"audio_device", cfg.Audio.Device,
		"ui", cfg.UI.IsEnabled(),
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Setup(context.Background(), observe.TelemetryConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := telemetry.Metrics()
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Audio registry ────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinDevices(reg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, reg, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		fmt.Fprintf(os.Stderr, "docent: %v\n", err)
		return 1
	}

	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		fmt.Fprintf(os.Stderr, "docent: %v\n", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinDevices wires the audio devices that ship with docent.
func registerBuiltinDevices(reg *config.Registry) {
	reg.RegisterAudio("malgo", func(ac config.AudioConfig) (audio.Device, error) {
		return malgo.New(ac.Format())
	})
	reg.RegisterAudio("silent", func(ac config.AudioConfig) (audio.Device, error) {
		return audio.NewSilent(ac.Format()), nil
	})
}

// printHistory writes archived chat entries to stdout.
func printHistory(path, which string) int {
	if path == "" {
		fmt.Fprintln(os.Stderr, "docent: archive.path is not configured")
		return 1
	}
	store, err := archive.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docent: %v\n", err)
		return 1
	}
	defer store.Close()

	if which == "list" {
		ids, err := store.Sessions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "docent: %v\n", err)
			return 1
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return 0
	}

	entries, err := store.Entries(which)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docent: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Printf("%s  %-9s  %s\n", e.Time.Format(time.DateTime), e.Role, e.Text)
	}
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// openLogOutput opens path for appending, or returns stderr when path is
// empty.
func openLogOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func newLogger(w io.Writer, level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
