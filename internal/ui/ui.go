// Package ui holds the render helpers the CLI uses for styled output.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var styled = term.IsTerminal(int(os.Stdout.Fd()))

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func render(s lipgloss.Style, text string) string {
	if !styled {
		return text
	}
	return s.Render(text)
}

// RenderPass styles a success marker.
func RenderPass(text string) string { return render(passStyle, text) }

// RenderWarn styles a warning marker.
func RenderWarn(text string) string { return render(warnStyle, text) }

// RenderFail styles a failure marker.
func RenderFail(text string) string { return render(failStyle, text) }

// RenderAccent styles informational highlights.
func RenderAccent(text string) string { return render(accentStyle, text) }

// RenderDim styles secondary detail.
func RenderDim(text string) string { return render(dimStyle, text) }

// Checkbox renders an item's checked state.
func Checkbox(checked bool) string {
	if checked {
		return RenderPass("[x]")
	}
	return "[ ]"
}
