package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/dirsync/internal/config"
)

func TestApplyTheme(t *testing.T) {
	orig := colorRed
	t.Cleanup(func() {
		colorRed = orig
		rebuildStyles()
	})

	red := "#ff0000"
	empty := ""
	ApplyTheme(config.ThemeConfig{Red: &red, Teal: &empty})

	assert.Equal(t, lipgloss.Color("#ff0000"), colorRed)
	assert.Equal(t, lipgloss.Color("#94e2d5"), colorTeal)
	assert.Equal(t, lipgloss.TerminalColor(colorRed), styleFailed.GetForeground())
}

func TestPaint(t *testing.T) {
	assert.Equal(t, "plain", paint(false, styleOK, "plain"))
	assert.Contains(t, paint(true, styleOK, "styled"), "styled")
}
