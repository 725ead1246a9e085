// Command listie manages file-backed list documents: opening them through
// the sync engine, merging concurrent edits, and resolving the conflict
// versions a file-sync service leaves behind.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/QuiteYellow/Listie.md-sub001/internal/bookmark"
	"github.com/QuiteYellow/Listie.md-sub001/internal/config"
	"github.com/QuiteYellow/Listie.md-sub001/internal/engine"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "listie",
	Short: "Local-first list documents with conflict-free file sync",
	Long: `listie manages list documents stored as files, possibly shared
between devices through a file-sync service.

Every read goes through the sync engine: pending conflict versions are
collapsed into one coherent document before you see it, and every write is
checked against concurrent changes so no edit is lost to a stale read.`,
	SilenceUsage: true,
}

// app bundles the long-lived collaborators a command needs.
type app struct {
	cfg      *config.Config
	registry *bookmark.Registry
	engine   *engine.Engine
	logger   *log.Logger
}

// newApp loads configuration and wires the engine. Callers must call
// app.close.
func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	logger := log.New(os.Stderr, "[listie] ", log.LstdFlags)
	registry, err := bookmark.Open(cfg.RegistryPath, logger)
	if err != nil {
		return nil, err
	}
	if _, err := registry.Prune(); err != nil {
		// Best-effort startup housekeeping; a failure is not fatal.
		logger.Printf("WARNING: bookmark prune failed: %v", err)
	}

	eng := engine.New(engine.Options{
		CacheTTL:           cfg.CacheTTL(),
		Tolerance:          cfg.JitterTolerance(),
		MaterializeTimeout: cfg.MaterializeTimeout(),
		Access:             registry,
		Logger:             logger,
	})

	return &app{cfg: cfg, registry: registry, engine: eng, logger: logger}, nil
}

func (a *app) close() {
	if err := a.registry.Close(); err != nil {
		a.logger.Printf("WARNING: close registry: %v", err)
	}
}

// fatal prints an error and exits, the way every command reports failure.
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.config/listie/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(bookmarksCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
