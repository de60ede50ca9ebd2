package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brightfield-crm/syncengine/internal/httpremote"
	"github.com/brightfield-crm/syncengine/internal/localstore"
	"github.com/brightfield-crm/syncengine/internal/syncconfig"
	"github.com/brightfield-crm/syncengine/internal/syncengine"
)

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Drive the CRM client sync engine from the command line",
	Long: `syncctl is a thin demonstration CLI over the sync engine library:
it links a local device to a principal, runs sync passes against a demo
HTTP backend, and reports status/conflicts/retry state the way a real
app's view layer would via the Engine's public API.`,
}

// devicePrincipal adapts the persisted syncconfig.Device into ports.Principal.
type devicePrincipal struct {
	dev syncconfig.Device
}

func (p devicePrincipal) CurrentUserID() string { return p.dev.UserID }
func (p devicePrincipal) IsAdmin() bool         { return p.dev.IsAdmin }

// baseDir returns the local store's directory, ~/.config/syncengine/data
// by default, overridable with SYNCENGINE_DATA_DIR for tests/demos.
func baseDir() (string, error) {
	if d := os.Getenv("SYNCENGINE_DATA_DIR"); d != "" {
		return d, nil
	}
	dir, err := syncconfig.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openStore opens the local store alone, for subcommands (like
// `conflicts`) that only read local state and don't need a full Engine.
func openStore() (*localstore.Store, error) {
	dir, err := baseDir()
	if err != nil {
		return nil, err
	}
	return localstore.Open(dir)
}

// openEngine wires an Engine in ModeLive against the HTTP demo backend
// and the local SQLite store, matching Config.Mode's documented
// construction contract in internal/syncengine.
func openEngine() (eng *syncengine.Engine, store *localstore.Store, dev syncconfig.Device, err error) {
	cfg, err := syncconfig.Load()
	if err != nil {
		return nil, nil, syncconfig.Device{}, fmt.Errorf("load config: %w", err)
	}
	dev, err = syncconfig.LoadDevice()
	if err != nil {
		return nil, nil, syncconfig.Device{}, fmt.Errorf("load device: %w", err)
	}

	dir, err := baseDir()
	if err != nil {
		return nil, nil, syncconfig.Device{}, err
	}
	store, err = localstore.Open(dir)
	if err != nil {
		return nil, nil, syncconfig.Device{}, fmt.Errorf("open local store: %w", err)
	}

	remote := httpremote.New(cfg.ServerURL, "")
	log := newLogger(cfg.LogLevel)

	eng = syncengine.New(syncengine.Config{
		Remote:        remote,
		Store:         store,
		Objects:       remote,
		Compat:        remote,
		Principal:     devicePrincipal{dev: dev},
		Platform:      cfg.Platform,
		ClientVersion: cfg.ClientVersion,
		Mode:          syncengine.ModeLive,
		Log:           slogAdapter{log},
	})
	return eng, store, dev, nil
}

// slogAdapter satisfies ports.Logger with a *slog.Logger.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
