// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// PALETTE
// =============================================================================

// Purple - assistant messages, selections
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - user messages, info, commands
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - success
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - errors
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - warnings, retries
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// TextSecondary - labels
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

// TextMuted - hints, timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// Overlay - separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// =============================================================================
// STYLES
// =============================================================================

var (
	TitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	UserStyle      = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	AssistantStyle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	ErrorStyle     = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	WarningStyle   = lipgloss.NewStyle().Foreground(Amber)
	SuccessStyle   = lipgloss.NewStyle().Bold(true).Foreground(Emerald)
	LabelStyle     = lipgloss.NewStyle().Foreground(TextSecondary)
	DimStyle       = lipgloss.NewStyle().Foreground(TextMuted)
	SeparatorStyle = lipgloss.NewStyle().Foreground(Overlay)

	// ActiveMarkerStyle marks the active thread in lists
	ActiveMarkerStyle = lipgloss.NewStyle().Bold(true).Foreground(Emerald)
)
