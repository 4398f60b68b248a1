// Package metrics holds the Prometheus collectors updated by the scheduler
// and the account manager:
//
//	paperdesk_cycles_total{account}
//	paperdesk_symbol_outcomes_total{account,outcome}
//	paperdesk_cache_lookups_total{account,result}
//	paperdesk_source_calls_total{source,status}
//	paperdesk_source_cost_usd_total{source}
//	paperdesk_trades_total{account,reason}
//	paperdesk_equity_usd{account}
//	paperdesk_symbol_failures{account,symbol}
//
// They are registered in init() and served by the binary at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_cycles_total",
			Help: "Scheduler cycles completed",
		},
		[]string{"account"},
	)

	outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_symbol_outcomes_total",
			Help: "Per-symbol cycle outcomes",
		},
		[]string{"account", "outcome"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_cache_lookups_total",
			Help: "Decision cache lookups split by hit|miss",
		},
		[]string{"account", "result"},
	)

	sourceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_source_calls_total",
			Help: "Decision source calls split by ok|unavailable|error",
		},
		[]string{"source", "status"},
	)

	sourceCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_source_cost_usd_total",
			Help: "Accumulated decision source cost in USD",
		},
		[]string{"source"},
	)

	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperdesk_trades_total",
			Help: "Book trades split by reason",
		},
		[]string{"account", "reason"},
	)

	equity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paperdesk_equity_usd",
			Help: "Account equity in USD",
		},
		[]string{"account"},
	)

	symbolFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paperdesk_symbol_failures",
			Help: "Consecutive failed cycles per symbol",
		},
		[]string{"account", "symbol"},
	)
)

func init() {
	prometheus.MustRegister(cycles, outcomes, cacheLookups, sourceCalls, sourceCost, trades, equity, symbolFailures)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func CycleDone(account string) { cycles.WithLabelValues(account).Inc() }

func SymbolOutcome(account, outcome string) { outcomes.WithLabelValues(account, outcome).Inc() }

// CacheLookup records a cache hit or miss.
func CacheLookup(account string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(account, result).Inc()
}

// SourceCall records one decision request and its cost.
func SourceCall(source, status string, cost float64) {
	sourceCalls.WithLabelValues(source, status).Inc()
	if cost > 0 {
		sourceCost.WithLabelValues(source).Add(cost)
	}
}

func Trade(account, reason string) { trades.WithLabelValues(account, reason).Inc() }

func Equity(account string, usd float64) { equity.WithLabelValues(account).Set(usd) }

func SymbolFailures(account, symbol string, n int) {
	symbolFailures.WithLabelValues(account, symbol).Set(float64(n))
}
