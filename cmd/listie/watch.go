package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/QuiteYellow/Listie.md-sub001/internal/ui"
	"github.com/QuiteYellow/Listie.md-sub001/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Watch directories and keep list documents reconciled",
	Long: `Run as a daemon: watch the given directories for document changes.
An edited document is re-synced; an arriving conflict sibling triggers an
immediate resolve. Stops on SIGINT/SIGTERM.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		var out io.Writer = os.Stderr
		if a.cfg.LogFile != "" {
			out = &lumberjack.Logger{
				Filename:   a.cfg.LogFile,
				MaxSize:    a.cfg.LogMaxSizeMB,
				MaxBackups: a.cfg.LogMaxBackups,
			}
		}
		logger := log.New(out, "[watch] ", log.LstdFlags)

		w, err := watch.New()
		if err != nil {
			fatal("%v", err)
		}
		if err := w.Start(args...); err != nil {
			fatal("%v", err)
		}
		defer func() {
			if err := w.Stop(); err != nil {
				logger.Printf("WARNING: stop watcher: %v", err)
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("%s Watching %v\n", ui.RenderAccent("👀"), args)
		logger.Printf("watching %v", args)

		for {
			select {
			case <-ctx.Done():
				logger.Printf("shutting down")
				return

			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				handleEvent(ctx, a, logger, ev)

			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				logger.Printf("WARNING: watch error: %v", err)
			}
		}
	},
}

func handleEvent(ctx context.Context, a *app, logger *log.Logger, ev watch.Event) {
	if ev.Op == watch.OpDelete {
		a.engine.Close(ev.Path)
		logger.Printf("closed %s (deleted)", ev.Path)
		return
	}

	// Syncing writes the merged document back, and that write raises its
	// own create event on the same path. Acting on it would write again
	// and feed the watcher forever, so events for a file whose on-disk
	// mod-time matches the engine's last recorded read are dropped.
	// Conflict-sibling arrivals always pass: the sibling needs a resolve
	// regardless of the base file's mod-time.
	if !ev.Conflict {
		changed, err := a.engine.HasFileChanged(ev.Path)
		if err != nil {
			logger.Printf("WARNING: staleness probe for %s: %v", ev.Path, err)
			return
		}
		if !changed {
			return
		}
	}

	// Conflict siblings and plain edits both funnel through Sync, which
	// resolves pending versions before merging.
	if _, err := a.engine.Sync(ctx, ev.Path); err != nil {
		logger.Printf("WARNING: sync %s after %s: %v", ev.Path, ev.Op, err)
		return
	}
	if ev.Conflict {
		logger.Printf("resolved conflict versions for %s", ev.Path)
	} else {
		logger.Printf("synced %s after %s", ev.Path, ev.Op)
	}
}
