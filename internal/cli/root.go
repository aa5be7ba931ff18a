// Package cli implements the exsim CLI commands.
package cli

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rcliao/exsim/internal/config"
	"github.com/rcliao/exsim/internal/engine"
	"github.com/rcliao/exsim/internal/pacing"
	"github.com/rcliao/exsim/internal/provider"
	"github.com/rcliao/exsim/internal/scheduler"
	"github.com/rcliao/exsim/internal/store"
)

var (
	dbPath     string
	configPath string
	formatFlag string
	verbose    bool

	cfg    *config.Config
	logger zerolog.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "exsim",
	Short: "Simulated ex chat with human pacing",
	Long:  "Chat with a simulated contact whose replies arrive as separate bubbles, paced like a real person typing. SQLite-backed, single binary.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger = newLogger(cfg.Log.Level)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $EXSIM_DB_PATH or ~/.exsim/exsim.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./config.yaml or ~/.exsim/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if cfg != nil && cfg.DB.Path != "" {
		return cfg.DB.Path
	}
	return config.DefaultDBPath()
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

// newEngine wires the pipeline for s. The caller closes the scheduler.
func newEngine(s store.ConversationStore, l engine.Listener) (*engine.Engine, *scheduler.Scheduler, error) {
	gen, err := provider.New(cfg.ProviderConfig())
	if err != nil {
		return nil, nil, err
	}
	sched := scheduler.New(logger)
	e := engine.New(s, gen, newPacer(), sched, logger, engine.Options{
		Fragment:      cfg.FragmentOptions(),
		MemoryCap:     cfg.Memory.Cap,
		HistoryBudget: cfg.Prompt.HistoryBudget,
		Listener:      l,
	})
	return e, sched, nil
}

func newPacer() *pacing.Pacer {
	pc := cfg.PacingConfig()
	var rng *rand.Rand
	if pc.Jitter > 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return pacing.New(pc, rng)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
