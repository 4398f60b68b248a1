package scheduler

import (
	"fmt"
	"strings"

	"PaperDesk/internal/model"
)

// BuildPrompt renders the market features and the account's current exposure
// as the user prompt of a decision request.
func BuildPrompt(f model.MarketFeatures, snap model.AccountSnapshot) string {
	var b strings.Builder
	b.WriteString("## Market\n")
	if f.Description != "" {
		b.WriteString(f.Description)
	} else {
		fmt.Fprintf(&b, "%s price %.4f, trend %s, momentum %s", f.Symbol, f.CurrentPrice, f.Trend, f.Momentum)
	}
	b.WriteString("\n\n## Account\n")
	fmt.Fprintf(&b, "balance %.2f, equity %.2f, unrealized pnl %+.2f\n", snap.Balance, snap.Equity, snap.UnrealizedPnL)
	held := false
	for _, p := range snap.Positions {
		if p.Symbol != f.Symbol {
			continue
		}
		held = true
		fmt.Fprintf(&b, "holding %s %s size %.6f entry %.4f", p.Symbol, p.Direction, p.Size, p.EntryPrice)
		if p.StopLoss > 0 {
			fmt.Fprintf(&b, " stop %.4f", p.StopLoss)
		}
		if p.TakeProfit > 0 {
			fmt.Fprintf(&b, " take %.4f", p.TakeProfit)
		}
		fmt.Fprintf(&b, " pnl %+.2f\n", p.UnrealizedPnL)
	}
	if !held {
		fmt.Fprintf(&b, "no position in %s\n", f.Symbol)
	}
	if others := len(snap.Positions); others > 0 && (others > 1 || !held) {
		b.WriteString("other positions:")
		for _, p := range snap.Positions {
			if p.Symbol != f.Symbol {
				fmt.Fprintf(&b, " %s %s", p.Symbol, p.Direction)
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nDecide the next action for %s.", f.Symbol)
	return b.String()
}
