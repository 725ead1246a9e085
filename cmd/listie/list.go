package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/QuiteYellow/Listie.md-sub001/internal/codec"
	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
	"github.com/QuiteYellow/Listie.md-sub001/internal/engine"
	"github.com/QuiteYellow/Listie.md-sub001/internal/ui"
)

var createCmd = &cobra.Command{
	Use:   "create <file> <name>",
	Short: "Create a new list document",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, name := args[0], args[1]
		if !codec.IsSupportedPath(path) {
			fatal("unsupported extension (use %s or %s)", codec.ExtNative, codec.ExtJSON)
		}
		if _, err := os.Stat(path); err == nil {
			fatal("%s already exists", path)
		}

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := document.New(name)
		if _, err := a.engine.Save(context.Background(), doc, path, true); err != nil {
			fatal("create list: %v", err)
		}
		fmt.Printf("%s Created %q (%s)\n", ui.RenderPass("✓"), name, path)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Show a list and its items",
	Long: `Open a list document through the sync engine and print it.

Opening collapses any pending conflict versions first, so what you see is
the single merged state that is on disk. With --verbose, decode fallbacks
(substituted names, repaired timestamps) are reported too.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc, err := a.engine.Open(context.Background(), path, false)
		if err != nil {
			fatal("open list: %v", err)
		}

		if flagVerbose {
			data, err := os.ReadFile(path)
			if err == nil {
				if _, notices, err := codec.Decode(data); err == nil {
					for _, n := range notices {
						fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), n)
					}
				}
			}
		}

		printDocument(doc)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <file>",
	Short: "Delete a list document and forget its bookmark",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		confirmed := false
		prompt := huh.NewConfirm().
			Title(fmt.Sprintf("Delete %s?", path)).
			Description("The file and its bookmark are removed. This cannot be undone.").
			Value(&confirmed)
		if err := prompt.Run(); err != nil {
			fatal("%v", err)
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return
		}

		a.engine.Close(path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fatal("delete %s: %v", path, err)
		}
		if err := a.registry.Remove(path); err != nil {
			fatal("remove bookmark: %v", err)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), path)
	},
}

// printDocument renders a document the way `show` displays it.
func printDocument(doc *document.ListDocument) {
	fmt.Printf("%s %s\n", ui.RenderAccent(doc.List.Name), ui.RenderDim("("+doc.List.ID+")"))

	items := doc.VisibleItems()
	if len(items) == 0 {
		fmt.Println(ui.RenderDim("  (empty)"))
		return
	}
	for _, it := range items {
		line := fmt.Sprintf("  %s %s", ui.Checkbox(it.Checked), it.Note)
		if it.Quantity != 1 {
			line += ui.RenderDim(fmt.Sprintf(" ×%v", it.Quantity))
		}
		if it.LabelID != "" {
			if label, ok := doc.LabelByID(it.LabelID); ok {
				line += " " + ui.RenderAccent("#"+label.Name)
			}
			// Dangling label references render as no label.
		}
		fmt.Println(line)
	}
}

// openOrDie is shared by the item/label commands.
func openOrDie(a *app, path string) *document.ListDocument {
	doc, err := a.engine.Open(context.Background(), path, false)
	if err != nil {
		fatal("open list: %v", err)
	}
	return doc
}

// saveOrDie persists a mutated document and reports a resolved write race.
func saveOrDie(a *app, doc *document.ListDocument, path string) {
	res, err := a.engine.Save(context.Background(), doc, path, false)
	if err != nil {
		if errors.Is(err, engine.ErrPermissionDenied) {
			fatal("%s is not writable", path)
		}
		fatal("save list: %v", err)
	}
	if res.RaceResolved {
		fmt.Printf("%s Merged with concurrent changes from disk\n", ui.RenderWarn("⚠"))
	}
}
