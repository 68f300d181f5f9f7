// Package styles defines the visual styling for the report.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/spendlens/internal/models"
)

// Color definitions for the report theme.
var (
	// Primary colors
	Primary   = lipgloss.Color("205") // Pink
	Secondary = lipgloss.Color("63")  // Purple
	Subtle    = lipgloss.Color("240") // Gray

	// Status colors
	Success = lipgloss.Color("42")  // Green
	Error   = lipgloss.Color("196") // Red
	Warning = lipgloss.Color("220") // Yellow
	Info    = lipgloss.Color("39")  // Blue

	// Text colors
	TextPrimary   = lipgloss.Color("252")
	TextSecondary = lipgloss.Color("245")
	TextMuted     = lipgloss.Color("240")
)

// TitleStyle is used for main headings.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	MarginBottom(1)

// SubTitleStyle is used for section headings.
var SubTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Secondary)

// CardStyle creates a bordered card container.
var CardStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Subtle).
	Padding(0, 1).
	MarginBottom(1)

// HelpStyle is used for muted hints and empty-state text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(TextMuted)

// TableHeaderStyle styles table headers.
var TableHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	Padding(0, 1)

// TableCellStyle styles table cells.
var TableCellStyle = lipgloss.NewStyle().
	Padding(0, 1)

// MoneyStyle right-aligns amounts.
var MoneyStyle = TableCellStyle.
	Align(lipgloss.Right)

// ErrorTextStyle for error messages.
var ErrorTextStyle = lipgloss.NewStyle().
	Foreground(Error)

// SuccessTextStyle for success messages.
var SuccessTextStyle = lipgloss.NewStyle().
	Foreground(Success)

// WarningTextStyle for warning messages.
var WarningTextStyle = lipgloss.NewStyle().
	Foreground(Warning)

// InfoTextStyle for info messages.
var InfoTextStyle = lipgloss.NewStyle().
	Foreground(Info)

// MutedTextStyle for values that carry no signal.
var MutedTextStyle = lipgloss.NewStyle().
	Foreground(Subtle)

// StatusStyle returns the style for a ledger status.
func StatusStyle(status models.ReconciliationStatus) lipgloss.Style {
	switch status {
	case models.StatusMatched:
		return SuccessTextStyle
	case models.StatusOver:
		return ErrorTextStyle.Bold(true)
	case models.StatusUnder:
		return WarningTextStyle
	case models.StatusCredit:
		return InfoTextStyle
	default:
		return MutedTextStyle
	}
}

// PriorityStyle returns the style for a recommendation priority.
func PriorityStyle(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityCritical:
		return ErrorTextStyle.Bold(true)
	case models.PriorityHighValue:
		return WarningTextStyle
	case models.PriorityQuickWin:
		return SuccessTextStyle
	default:
		return MutedTextStyle
	}
}

// SeverityStyle returns the style for a waste severity tier.
func SeverityStyle(s models.WasteSeverity) lipgloss.Style {
	switch s {
	case models.SeverityCritical:
		return ErrorTextStyle.Bold(true)
	case models.SeverityHigh:
		return WarningTextStyle
	case models.SeverityMedium:
		return InfoTextStyle
	default:
		return MutedTextStyle
	}
}

// CenterHorizontal centers content horizontally within a given width.
func CenterHorizontal(content string, width int) string {
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(content)
}
