package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/QuiteYellow/Listie.md-sub001/internal/conflict"
	"github.com/QuiteYellow/Listie.md-sub001/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync <file>",
	Short: "Reconcile a list with its on-disk state",
	Long: `Force a three-way reconciliation of the document: pending conflict
versions are collapsed, the file is re-read, and any cached local state is
merged in. The merged result is written back and printed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc, err := a.engine.Sync(context.Background(), path)
		if err != nil {
			fatal("sync: %v", err)
		}
		fmt.Printf("%s Synced %s\n", ui.RenderPass("✓"), path)
		printDocument(doc)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <file>",
	Short: "Collapse pending conflict versions of a document",
	Long: `Merge the conflict siblings a file-sync service left next to the
document into one version. Versions that cannot be decoded are skipped; if
none of them can be, the newest copy wins and the loss is reported.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		resolver := conflict.New(nil, a.cfg.JitterTolerance(), a.logger)
		outcome, err := resolver.Resolve(path)
		if err != nil {
			fatal("resolve: %v", err)
		}

		switch {
		case !outcome.Resolved():
			fmt.Printf("%s No pending conflict versions\n", ui.RenderPass("✓"))
		case outcome.Degraded:
			fmt.Printf("%s Kept newest version; %d conflicting version(s) could not be decoded and were discarded\n",
				ui.RenderWarn("⚠"), outcome.Skipped)
		default:
			fmt.Printf("%s Merged %d conflict version(s)", ui.RenderPass("✓"), outcome.Merged)
			if outcome.Skipped > 0 {
				fmt.Printf(" %s", ui.RenderWarn(fmt.Sprintf("(%d skipped)", outcome.Skipped)))
			}
			fmt.Println()
		}
	},
}
