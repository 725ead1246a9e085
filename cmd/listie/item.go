package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/QuiteYellow/Listie.md-sub001/internal/document"
	"github.com/QuiteYellow/Listie.md-sub001/internal/ui"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage items in a list",
}

var itemAddCmd = &cobra.Command{
	Use:   "add <file> <note>",
	Short: "Add an item",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		note := strings.Join(args[1:], " ")

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		id, err := doc.AddItem(note)
		if err != nil {
			fatal("add item: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s Added %q (%s)\n", ui.RenderPass("✓"), note, ui.RenderDim(id))
	},
}

var itemCheckCmd = &cobra.Command{
	Use:   "check <file> <item-id>",
	Short: "Toggle an item's checked state",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, id := args[0], args[1]

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		item, ok := findItem(doc, id)
		if !ok {
			fatal("item %s not found", id)
		}
		if err := doc.SetChecked(item.ID, !item.Checked); err != nil {
			fatal("check item: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s %s %q\n", ui.RenderPass("✓"), checkedWord(!item.Checked), item.Note)
	},
}

var itemQuantityCmd = &cobra.Command{
	Use:   "quantity <file> <item-id> <n>",
	Short: "Set an item's quantity",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		path, id := args[0], args[1]
		qty, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fatal("invalid quantity %q", args[2])
		}

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		item, ok := findItem(doc, id)
		if !ok {
			fatal("item %s not found", id)
		}
		if err := doc.SetQuantity(item.ID, qty); err != nil {
			fatal("set quantity: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s %q × %v\n", ui.RenderPass("✓"), item.Note, qty)
	},
}

var itemRemindCmd = &cobra.Command{
	Use:   "remind <file> <item-id> <when...>",
	Short: "Set a reminder date on an item",
	Long: `Set a reminder date using natural language, e.g.:

  listie item remind groceries.listie 1a2b3c "tomorrow at 9am"

The date is stored on the item; scheduling the notification itself is up
to the platform integration.`,
	Args: cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		path, id := args[0], args[1]
		phrase := strings.Join(args[2:], " ")

		w := when.New(nil)
		w.Add(en.All...)
		w.Add(common.All...)
		res, err := w.Parse(phrase, time.Now())
		if err != nil || res == nil {
			fatal("could not understand %q as a date", phrase)
		}

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		item, ok := findItem(doc, id)
		if !ok {
			fatal("item %s not found", id)
		}
		due := res.Time
		if err := doc.SetReminder(item.ID, &due, "", ""); err != nil {
			fatal("set reminder: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s Reminder for %q at %s\n", ui.RenderPass("✓"), item.Note, due.Format(time.RFC1123))
	},
}

var itemRemoveCmd = &cobra.Command{
	Use:   "remove <file> <item-id>",
	Short: "Remove an item (soft delete, restorable)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, id := args[0], args[1]

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		item, ok := findItem(doc, id)
		if !ok {
			fatal("item %s not found", id)
		}
		if err := doc.SoftDeleteItem(item.ID); err != nil {
			fatal("remove item: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s Removed %q\n", ui.RenderPass("✓"), item.Note)
	},
}

var itemRestoreCmd = &cobra.Command{
	Use:   "restore <file> <item-id>",
	Short: "Restore a removed item",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, id := args[0], args[1]

		a, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		doc := openOrDie(a, path)
		item, ok := findItem(doc, id)
		if !ok {
			fatal("item %s not found", id)
		}
		if err := doc.RestoreItem(item.ID); err != nil {
			fatal("restore item: %v", err)
		}
		saveOrDie(a, doc, path)
		fmt.Printf("%s Restored %q\n", ui.RenderPass("✓"), item.Note)
	},
}

// findItem matches an item by full id or unambiguous prefix, including
// soft-deleted items so remove/restore can address them.
func findItem(doc *document.ListDocument, id string) (document.Item, bool) {
	var match document.Item
	found := 0
	for _, it := range doc.Items {
		if it.ID == id {
			return it, true
		}
		if strings.HasPrefix(it.ID, id) {
			match = it
			found++
		}
	}
	if found == 1 {
		return match, true
	}
	return document.Item{}, false
}

func checkedWord(checked bool) string {
	if checked {
		return "Checked"
	}
	return "Unchecked"
}

func init() {
	itemCmd.AddCommand(itemAddCmd)
	itemCmd.AddCommand(itemCheckCmd)
	itemCmd.AddCommand(itemQuantityCmd)
	itemCmd.AddCommand(itemRemindCmd)
	itemCmd.AddCommand(itemRemoveCmd)
	itemCmd.AddCommand(itemRestoreCmd)
}
