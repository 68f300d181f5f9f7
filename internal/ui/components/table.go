package components

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/spendlens/internal/ui/styles"
)

// DefaultMaxCellWidth caps free-text columns such as titles and UPNs.
const DefaultMaxCellWidth = 48

// Table describes a static report table.
type Table struct {
	Headers []string
	Rows    [][]string
	// RightAlign marks numeric columns by index.
	RightAlign map[int]bool
	// MaxCellWidth truncates cells wider than this; zero means DefaultMaxCellWidth.
	MaxCellWidth int
}

// RenderTable draws t with a rounded border. Cells may already carry ANSI
// styling; truncation keeps escape sequences intact.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 {
		return styles.HelpStyle.Render("No rows")
	}

	limit := t.MaxCellWidth
	if limit <= 0 {
		limit = DefaultMaxCellWidth
	}

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = Truncate(cell, limit)
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Subtle)).
		Headers(t.Headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.TableHeaderStyle
			}
			if t.RightAlign[col] {
				return styles.MoneyStyle
			}
			return styles.TableCellStyle
		}).
		Render()
}

// Truncate shortens s to width display cells, ending with an ellipsis.
func Truncate(s string, width int) string {
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}
