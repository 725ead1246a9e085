package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/QuiteYellow/Listie.md-sub001/internal/ui"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage labels in a list",
}

var labelColor string

var labelAddCmd = &cobra.Command{
	Use:   "add <file> <name>",
	Short: "Add a label",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, name := args[0], args[1]

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		id, err := doc.AddLabel(name, labelColor)
		if err != nil {
			fatal("add label: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s Added label %q (%s)\n", ui.RenderPass("✓"), name, ui.RenderDim(id))
	},
}

var labelAssignCmd = &cobra.Command{
	Use:   "assign <file> <item-id> <label-id>",
	Short: "Assign a label to an item (empty label-id clears it)",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		path, itemID, labelID := args[0], args[1], args[2]

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		item, ok := findItem(doc, itemID)
		if !ok {
			fatal("item %s not found", itemID)
		}
		if err := doc.AssignLabel(item.ID, labelID); err != nil {
			fatal("assign label: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s Labeled %q\n", ui.RenderPass("✓"), item.Note)
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:   "remove <file> <label-id>",
	Short: "Remove a label (items keep their reference, shown as no label)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, id := args[0], args[1]

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		if err := doc.RemoveLabel(id); err != nil {
			fatal("remove label: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s Removed label %s\n", ui.RenderPass("✓"), id)
	},
}

func init() {
	labelAddCmd.Flags().StringVar(&labelColor, "color", "#808080", "label color (hex)")
	labelCmd.AddCommand(labelAddCmd)
	labelCmd.AddCommand(labelAssignCmd)
	labelCmd.AddCommand(labelRemoveCmd)
}
