package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/QuiteYellow/Listie.md-sub001/internal/ui"
)

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "Inspect the registry of known list documents",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		entries, err := a.registry.Entries()
		if err != nil {
			fatal("list bookmarks: %v", err)
		}
		if len(entries) == 0 {
			fmt.Println(ui.RenderDim("No bookmarked lists."))
			return
		}
		for _, e := range entries {
			marker := ui.RenderPass("✓")
			if _, statErr := os.Stat(e.Path); statErr != nil {
				marker = ui.RenderFail("✗")
			}
			sessions := a.registry.ActiveSessions(e.Path)
			line := fmt.Sprintf("%s %s", marker, e.Path)
			if sessions > 0 {
				line += ui.RenderDim(fmt.Sprintf(" (%d active)", sessions))
			}
			fmt.Println(line)
		}
	},
}

var bookmarksPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop bookmarks whose files are missing or trashed",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		removed, err := a.registry.Prune()
		if err != nil {
			fatal("prune bookmarks: %v", err)
		}
		if removed == 0 {
			fmt.Println("Nothing to prune.")
			return
		}
		fmt.Printf("%s Pruned %d stale bookmark(s)\n", ui.RenderPass("✓"), removed)
	},
}

func init() {
	bookmarksCmd.AddCommand(bookmarksPruneCmd)
}
