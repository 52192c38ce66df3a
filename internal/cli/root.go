// Package cli defines the Cobra commands for the hearnow CLI.
// This file contains the root command, which launches the TUI.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codev612/hearnow/internal/app"
	"github.com/codev612/hearnow/internal/assistant"
	"github.com/codev612/hearnow/internal/catalog"
	"github.com/codev612/hearnow/internal/config"
	"github.com/codev612/hearnow/internal/daemon"
	"github.com/codev612/hearnow/internal/db"
	"github.com/codev612/hearnow/internal/log"
	"github.com/codev612/hearnow/internal/meeting"
)

var (
	configDir string
	debug     bool
	version   = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "hearnow",
	Short: "Live meeting transcripts with markers and AI notes",
	Long: `hearnow records a meeting through the local transcription daemon,
keeps the transcript saved as it grows, lets you mark moments, and asks an
AI model for summaries, insights and follow-up questions.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Without a terminal there is nothing to draw on.
		if !isTTY() {
			return cmd.Help()
		}
		return runTUI(cmd.Context())
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", config.Dir(), "Config directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(modesCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(mcpCmd)
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// env is what every command needs: config, a logger and the store.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *db.Store
	closers []io.Closer
}

func openEnv() (*env, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logger, logFile, err := log.Setup(cfg.Log.Dir, level)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: logger, closers: []io.Closer{logFile}}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.store = store
	e.closers = append(e.closers, store)
	return e, nil
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i].Close()
	}
}

func runTUI(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	e.log.Info().Str("version", version).Str("db", e.cfg.DBPath).Msg("starting")

	tr := daemon.NewTranscriber(e.cfg.Daemon.Socket, e.log)
	defer tr.Close()

	ai := assistant.New(assistant.NewClient(e.cfg.AI.BaseURL, e.cfg.AI.APIKey, e.cfg.AI.Model), e.log)

	// The clock only ticks while recording, which starts after Run.
	var program *tea.Program
	ctrl := meeting.New(tr, e.store, ai, meeting.Options{
		StopSyncDelay: e.cfg.StopSyncDelay(),
		ClockTick:     e.cfg.ClockTick(),
		UseMic:        e.cfg.Daemon.UseMic,
		OnClockTick: func(elapsed time.Duration) {
			program.Send(app.ClockTickMsg{Elapsed: elapsed})
		},
	}, e.log)
	defer ctrl.Close()

	modes := catalog.NewModes(e.store, e.log)
	if err := modes.Load(ctx); err != nil {
		e.log.Warn().Err(err).Msg("load modes failed")
	}
	if _, err := ctrl.NewSession(); err != nil {
		return fmt.Errorf("new session: %w", err)
	}

	program = tea.NewProgram(app.New(ctrl, tr, modes, e.cfg.Refresh()), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	if ctrl.Recording() {
		ctrl.StopRecording()
	}
	ctrl.Close()

	// Flush whatever the last refresh tick missed.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctrl.Sync(flushCtx)
	return nil
}
