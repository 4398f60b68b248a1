package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"PaperDesk/internal/account"
	"PaperDesk/internal/model"
	"PaperDesk/internal/scheduler"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	gainStyle = cellStyle.Foreground(lipgloss.Color("#10B981"))
	lossStyle = cellStyle.Foreground(lipgloss.Color("#EF4444"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))).
		Headers(headers...)
}

// signedStyle colors a cell by the sign of v.
func signedStyle(v float64) lipgloss.Style {
	switch {
	case v > 0:
		return gainStyle
	case v < 0:
		return lossStyle
	}
	return cellStyle
}

func renderPerformance(perfs []model.Performance) string {
	rows := make([][]string, 0, len(perfs))
	for _, p := range perfs {
		rows = append(rows, []string{
			fmt.Sprintf("#%d", p.Rank),
			p.Name,
			p.Source,
			fmt.Sprintf("%.2f", p.Equity),
			fmt.Sprintf("%+.2f", p.TotalPnL),
			fmt.Sprintf("%+.2f%%", p.ReturnPct),
			fmt.Sprintf("%d", p.OpenPositions),
			fmt.Sprintf("%d", p.TotalTrades),
			fmt.Sprintf("%.0f%%", p.WinRate*100),
			fmt.Sprintf("%.4f", p.TotalCost),
			fmt.Sprintf("%.0f%%", p.CacheHitRate*100),
		})
	}
	t := newTable("Rank", "Account", "Source", "Equity", "PnL", "Return", "Open", "Trades", "Win", "Cost", "Cache").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 4 && row < len(perfs) {
				return signedStyle(perfs[row].TotalPnL)
			}
			return cellStyle
		})
	return titleStyle.Render("Performance") + "\n" + t.Render()
}

func renderCycles(stats map[string]scheduler.CycleStats) string {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		s := stats[id]
		rows = append(rows, []string{
			id,
			formatOutcomes(s.Outcomes),
			fmt.Sprintf("%d", s.Failures),
			fmt.Sprintf("%d", s.CacheHits),
			s.Elapsed.Round(1e6).String(),
		})
	}
	t := newTable("Account", "Outcomes", "Failures", "Cache hits", "Elapsed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return titleStyle.Render("Cycle") + "\n" + t.Render()
}

func formatOutcomes(outcomes map[string]int) string {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, outcomes[k]))
	}
	return strings.Join(parts, " ")
}

func renderReport(r account.Report) string {
	ag := r.Aggregate
	return titleStyle.Render("Aggregate") + "\n" + fmt.Sprintf(
		"trades %d | win rate %.0f%% | pnl %+.2f | cost %.4f | cache hit %.0f%%",
		ag.TotalTrades, ag.WinRate*100, ag.TotalPnL, ag.TotalCost, ag.CacheHitRate*100)
}

func renderTrades(trades []model.Trade) string {
	rows := make([][]string, 0, len(trades))
	for _, tr := range trades {
		side := "close"
		if tr.Opening {
			side = "open"
		}
		rows = append(rows, []string{
			tr.Timestamp.Format("2006-01-02 15:04:05"),
			tr.AccountID,
			tr.Symbol,
			string(tr.Direction),
			side,
			fmt.Sprintf("%.6f", tr.Size),
			fmt.Sprintf("%.4f", tr.Price),
			fmt.Sprintf("%.4f", tr.Fee),
			fmt.Sprintf("%+.2f", tr.RealizedPnL),
			tr.Reason,
		})
	}
	t := newTable("Time", "Account", "Symbol", "Dir", "Side", "Size", "Price", "Fee", "PnL", "Reason").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 8 && row < len(trades) {
				return signedStyle(trades[row].RealizedPnL)
			}
			return cellStyle
		})
	return titleStyle.Render(fmt.Sprintf("Trades (%d)", len(trades))) + "\n" + t.Render()
}
