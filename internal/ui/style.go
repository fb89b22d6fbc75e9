package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/dirsync/internal/config"
)

// Catppuccin Mocha palette, overridable from the [theme] table.
var (
	colorGreen  = lipgloss.Color("#a6e3a1")
	colorYellow = lipgloss.Color("#f9e2af")
	colorRed    = lipgloss.Color("#f38ba8")
	colorTeal   = lipgloss.Color("#94e2d5")
	colorMuted  = lipgloss.Color("#5a6278")
)

var (
	styleOK      lipgloss.Style
	styleFailed  lipgloss.Style
	styleDryRun  lipgloss.Style
	styleLabel   lipgloss.Style
	styleNumber  lipgloss.Style
	styleErrPath lipgloss.Style
)

func init() {
	rebuildStyles()
}

func rebuildStyles() {
	styleOK = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	styleFailed = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	styleDryRun = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleLabel = lipgloss.NewStyle().Foreground(colorMuted)
	styleNumber = lipgloss.NewStyle().Foreground(colorTeal)
	styleErrPath = lipgloss.NewStyle().Foreground(colorRed)
}

// ApplyTheme overrides palette colors with any set in the config file.
// Call it before creating a presenter.
func ApplyTheme(theme config.ThemeConfig) {
	set := func(dst *lipgloss.Color, v *string) {
		if v != nil && *v != "" {
			*dst = lipgloss.Color(*v)
		}
	}
	set(&colorGreen, theme.Green)
	set(&colorYellow, theme.Yellow)
	set(&colorRed, theme.Red)
	set(&colorTeal, theme.Teal)
	set(&colorMuted, theme.Muted)
	rebuildStyles()
}

// paint renders s with st when color output is enabled.
func paint(color bool, st lipgloss.Style, s string) string {
	if !color {
		return s
	}
	return st.Render(s)
}
