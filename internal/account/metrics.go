package account

// Summary is the metrics block of one account or of all accounts together.
type Summary struct {
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	TotalPnL     float64 `json:"total_pnl"`
	TotalCost    float64 `json:"total_cost"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Report holds per-account summaries and their aggregate.
type Report struct {
	Accounts  map[string]Summary `json:"accounts"`
	Aggregate Summary            `json:"aggregate"`
}

// Metrics returns per-account and aggregate decision metrics. Aggregate
// rates are weighted by the underlying counts, not averaged per account.
func (m *Manager) Metrics() Report {
	r := Report{Accounts: make(map[string]Summary)}
	var closes, wins, hits, lookups int
	for _, a := range m.Accounts() {
		b := a.Scheduler.Book()
		counts := tradeStats(b.Trades())
		counters := a.Scheduler.Counters()
		s := Summary{
			TotalTrades:  counts.total,
			WinRate:      counts.winRate(),
			TotalPnL:     b.Snapshot().TotalPnL(),
			TotalCost:    counters.TotalCost,
			CacheHitRate: counters.CacheHitRate(),
		}
		r.Accounts[a.ID] = s

		r.Aggregate.TotalTrades += s.TotalTrades
		r.Aggregate.TotalPnL += s.TotalPnL
		r.Aggregate.TotalCost += s.TotalCost
		closes += counts.closes
		wins += counts.wins
		hits += counters.CacheHits
		lookups += counters.CacheLookups
	}
	if closes > 0 {
		r.Aggregate.WinRate = float64(wins) / float64(closes)
	}
	if lookups > 0 {
		r.Aggregate.CacheHitRate = float64(hits) / float64(lookups)
	}
	return r
}
