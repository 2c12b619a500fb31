package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/shopspring/decimal"
)

var (
	statusGreen  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusYellow = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	statusRed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var tableHeaderStyle = lipgloss.NewStyle().Bold(true)

// printTable writes rows as aligned columns without borders. Cell widths
// ignore the escape codes of colored statuses.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle.PaddingRight(2)
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// colorStatus renders a traffic light in its color. Unknown values pass through.
func colorStatus(status string) string {
	switch calculation.Status(status) {
	case calculation.StatusGreen:
		return statusGreen.Render(status)
	case calculation.StatusYellow:
		return statusYellow.Render(status)
	case calculation.StatusRed:
		return statusRed.Render(status)
	}
	return status
}

func hours(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func percent(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}
