package notifier

import (
	"fmt"
	"html"
	"strings"

	"PaperDesk/internal/model"
)

// FormatExit formats an automatic stop-loss or take-profit exit.
func FormatExit(t model.Trade) string {
	icon := "🛑"
	label := "Stop loss"
	if t.Reason == model.ReasonTakeProfit {
		icon = "🎯"
		label = "Take profit"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s\n\n", icon, label, html.EscapeString(t.AccountID)))
	b.WriteString(fmt.Sprintf("%s %s %.6f @ %.2f\n", t.Symbol, t.Direction, t.Size, t.Price))
	b.WriteString(fmt.Sprintf("Realized PnL: %+.2f (fee %.2f)\n", t.RealizedPnL, t.Fee))
	b.WriteString(fmt.Sprintf("Time: %s\n", t.Timestamp.Format("2006-01-02 15:04:05")))
	return b.String()
}

// FormatUnhealthy formats the alert raised when a symbol keeps failing.
func FormatUnhealthy(accountID, symbol string, failures int, lastErr string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚠️ <b>Symbol unhealthy</b> | %s\n\n", html.EscapeString(accountID)))
	b.WriteString(fmt.Sprintf("%s failed %d consecutive cycles\n", symbol, failures))
	if lastErr != "" {
		b.WriteString(fmt.Sprintf("Last error: <code>%s</code>\n", html.EscapeString(lastErr)))
	}
	return b.String()
}

// FormatRecovered formats the message sent when an unhealthy symbol succeeds again.
func FormatRecovered(accountID, symbol string) string {
	return fmt.Sprintf("✅ <b>Symbol recovered</b> | %s\n\n%s is back to normal\n", html.EscapeString(accountID), symbol)
}

// FormatHealth formats the symbol health table of one account.
func FormatHealth(accountID string, health []model.SymbolHealth) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🩺 <b>Health</b> | %s\n\n", html.EscapeString(accountID)))
	if len(health) == 0 {
		b.WriteString("no symbols scheduled\n")
		return b.String()
	}
	for _, h := range health {
		status := "ok"
		if !h.Healthy {
			status = "UNHEALTHY"
		}
		b.WriteString(fmt.Sprintf("%s: %s (failures %d, last %s)\n",
			h.Symbol, status, h.ConsecutiveFailures, h.LastOutcome))
	}
	return b.String()
}

// FormatPerformance formats the ranked account comparison.
func FormatPerformance(perfs []model.Performance) string {
	var b strings.Builder
	b.WriteString("📊 <b>Performance</b>\n\n")
	if len(perfs) == 0 {
		b.WriteString("no accounts\n")
		return b.String()
	}
	for _, p := range perfs {
		b.WriteString(fmt.Sprintf("#%d %s (%s)\n", p.Rank, html.EscapeString(p.Name), html.EscapeString(p.Source)))
		b.WriteString(fmt.Sprintf("   equity %.2f | pnl %+.2f (%+.2f%%)\n", p.Equity, p.TotalPnL, p.ReturnPct))
		b.WriteString(fmt.Sprintf("   trades %d | win %.0f%% | cost %.4f | cache hit %.0f%%\n",
			p.TotalTrades, p.WinRate*100, p.TotalCost, p.CacheHitRate*100))
	}
	return b.String()
}
