package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinledger_transactions_total",
			Help: "Number of ledger transactions recorded, by kind",
		},
		[]string{"kind"},
	)

	InsufficientFundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinledger_insufficient_funds_total",
			Help: "Number of debits rejected because the balance would go negative",
		},
	)

	NotificationsDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinledger_notifications_dispatched_total",
			Help: "Number of notifications written by the dispatcher",
		},
	)

	RealtimeDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinledger_realtime_deliveries_total",
			Help: "Number of callbacks fired by the realtime subscription layer",
		},
	)

	PollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "coinledger_poll_cycle_duration_seconds",
			Help: "Time taken by one realtime poll cycle",
		},
	)

	ExpiredRequestsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinledger_expired_requests_swept_total",
			Help: "Number of match requests expired and refunded by the sweeper",
		},
	)
)

var registerOnce sync.Once

// Register attaches every collector to the default registry. Safe to call
// more than once
func Register() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		TransactionsTotal,
		InsufficientFundsTotal,
		NotificationsDispatched,
		RealtimeDeliveries,
		PollCycleDuration,
		ExpiredRequestsSwept,
	)
}
