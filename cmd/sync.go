package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var syncStatus bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against the server",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		if syncStatus {
			printSyncStatus(a)
			return
		}

		if !a.cfg.IsAuthenticated() {
			exitf("not signed in; run 'listling login' first")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if err := a.engine.SyncOnce(ctx); err != nil {
			state := a.engine.State()
			if state.Reason != "" {
				exitf("%s", state.Reason)
			}
			exitf("%v", err)
		}
		fmt.Println("Synced.")
	},
}

func printSyncStatus(a *app) {
	pending, err := a.store.PendingCount()
	if err != nil {
		exitf("%v", err)
	}
	fmt.Printf("State:   %s\n", a.engine.State().Status)
	fmt.Printf("Pending: %d lists with unsynced changes\n", pending)
	if a.cfg.IsAuthenticated() {
		meta, err := a.store.GetSyncMeta(a.cfg.UserID)
		if err != nil {
			exitf("%v", err)
		}
		if meta != nil && meta.LastSyncAt != nil {
			fmt.Printf("Last:    %s\n", meta.LastSyncAt.Local().Format(time.RFC822))
		}
	} else {
		fmt.Println("Signed out: changes stay local until you sign in.")
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync engine in the foreground",
	Long: `Runs the engine loop: local changes push to the server as they happen,
remote changes merge back in as other members make them. Stop with Ctrl-C.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		if !a.cfg.IsAuthenticated() {
			exitf("not signed in; run 'listling login' first")
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(rotatedLogWriter(a.cfg), &slog.HandlerOptions{Level: level})))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		states, cancelStates := a.engine.WatchState()
		defer cancelStates()
		go func() {
			for s := range states {
				if s.Status == "error" {
					slog.Warn("sync", "state", s.Status, "reason", s.Reason)
				} else {
					slog.Info("sync", "state", s.Status)
				}
			}
		}()

		if err := a.engine.Run(ctx); err != nil && ctx.Err() == nil {
			exitf("%v", err)
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncStatus, "status", false, "show sync status instead of syncing")
	rootCmd.AddCommand(syncCmd, watchCmd)
}
