// Package theme provides the Lip Gloss color palette and reusable styles
// for the session inspector. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Thread strategy colors.
var (
	ColorAllOnUI      = lipgloss.Color("#3b82f6")
	ColorMostOnTASM   = lipgloss.Color("#06b6d4")
	ColorPartOnLayout = lipgloss.Color("#a855f7")
	ColorMultiThread  = lipgloss.Color("#f59e0b")
	ColorDefault      = lipgloss.Color("#9ca3af")
)

// Lifecycle state colors.
var (
	ColorUninitialized = lipgloss.Color("#7c3aed")
	ColorInitialized   = lipgloss.Color("#16a34a")
	ColorReloading     = lipgloss.Color("#d97706")
	ColorDestroyed     = lipgloss.Color("#374151")
	ColorErrored       = lipgloss.Color("#dc2626")
)

// Gauge thresholds.
var (
	ColorLoadLow  = lipgloss.Color("#22c55e") // <50%
	ColorLoadMid  = lipgloss.Color("#d97706") // 50-80%
	ColorLoadHigh = lipgloss.Color("#dc2626") // >80%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StrategyColor returns the color for a thread strategy name.
func StrategyColor(strategy string) lipgloss.Color {
	switch strategy {
	case "all_on_ui":
		return ColorAllOnUI
	case "most_on_tasm":
		return ColorMostOnTASM
	case "part_on_layout":
		return ColorPartOnLayout
	case "multi_thread":
		return ColorMultiThread
	default:
		return ColorDefault
	}
}

// StrategyBadge returns a short colored badge for a thread strategy.
func StrategyBadge(strategy string) string {
	label := "[?]"
	switch strategy {
	case "all_on_ui":
		label = "[UI]"
	case "most_on_tasm":
		label = "[TA]"
	case "part_on_layout":
		label = "[PL]"
	case "multi_thread":
		label = "[MT]"
	}
	return lipgloss.NewStyle().Foreground(StrategyColor(strategy)).Render(label)
}

// StateColor returns the color for a lifecycle state. Sessions with errors
// render in the error color unless they are already destroyed.
func StateColor(state string, errored bool) lipgloss.Color {
	if errored && state != "destroyed" {
		return ColorErrored
	}
	switch state {
	case "uninitialized":
		return ColorUninitialized
	case "initialized":
		return ColorInitialized
	case "reloading":
		return ColorReloading
	case "destroyed":
		return ColorDestroyed
	default:
		return ColorDefault
	}
}

// HealthColor returns the color for a resource health status.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// LoadColor returns the gauge color for a utilization fraction.
func LoadColor(pct float64) lipgloss.Color {
	switch {
	case pct > 0.8:
		return ColorLoadHigh
	case pct > 0.5:
		return ColorLoadMid
	default:
		return ColorLoadLow
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)

// StateGlyph returns a Unicode glyph representing a lifecycle state.
func StateGlyph(state string) string {
	switch state {
	case "uninitialized":
		return "◎"
	case "initialized":
		return "●"
	case "reloading":
		return "↻"
	case "destroyed":
		return "✗"
	default:
		return "·"
	}
}
