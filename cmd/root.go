package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/listling/listling/internal/auth"
	"github.com/listling/listling/internal/engine"
	"github.com/listling/listling/internal/lists"
	"github.com/listling/listling/internal/remote"
	"github.com/listling/listling/internal/store"
	"github.com/listling/listling/internal/syncconfig"
)

var (
	version string
	verbose bool
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "listling",
	Short: "Local-first shared lists",
	Long: `listling - shared lists that work offline.

Every change lands in the local store instantly; syncing with the shared
server happens in the background and never blocks you.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// app bundles the composition root: every component is an explicit
// instance, nothing is process-global.
type app struct {
	cfg     *syncconfig.Config
	store   *store.Store
	remote  *remote.Client
	auth    *auth.Static
	service *lists.Service
	engine  *engine.Engine
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

// buildApp wires the store, remote client, auth provider, facade, and
// engine from the persisted config.
func buildApp() (*app, error) {
	cfg, err := syncconfig.Load()
	if err != nil {
		return nil, err
	}
	deviceID, err := syncconfig.EnsureDeviceID(cfg)
	if err != nil {
		return nil, err
	}

	dir, err := syncconfig.Dir()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(filepath.Join(dir, "data"))
	if err != nil {
		return nil, err
	}

	rc := remote.New(cfg.ServerURL, cfg.APIKey, deviceID)
	principal := ""
	if cfg.IsAuthenticated() {
		principal = cfg.UserID
	}
	ap := auth.NewStatic(principal)

	return &app{
		cfg:     cfg,
		store:   st,
		remote:  rc,
		auth:    ap,
		service: lists.New(st, rc, ap, deviceID),
		engine:  engine.New(st, rc, ap),
	}, nil
}

// rotatedLogWriter returns the slog sink for long-running commands: a
// size-rotated file when configured, stderr otherwise.
func rotatedLogWriter(cfg *syncconfig.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
