package prometrics

import "github.com/prometheus/client_golang/prometheus"

// Tick outcome label values recorded by the poller.
const (
	OutcomePaid      = "paid"
	OutcomePending   = "pending"
	OutcomeTransient = "transient_error"
	OutcomeExpired   = "expired"
	OutcomeOversold  = "oversold"
	OutcomeDuplicate = "duplicate_success"
)

// Metrics bundles the prometheus instruments the core reports to. Vectors are
// created once and injected; components never register metrics themselves.
type Metrics struct {
	PollTicks       *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	OrderOutcomes   *prometheus.CounterVec
	OversellTotal   prometheus.Counter
	ActivePollers   prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatshop_poll_ticks_total",
				Help: "Total confirmation poller ticks by outcome.",
			},
			[]string{"outcome"},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatshop_gateway_query_duration_seconds",
				Help:    "Duration of payment gateway status queries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		OrderOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatshop_order_terminal_total",
				Help: "Orders reaching a terminal status.",
			},
			[]string{"status"},
		),
		OversellTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatshop_oversell_total",
				Help: "Paid orders that could not be fulfilled and need a manual refund.",
			},
		),
		ActivePollers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatshop_active_pollers",
				Help: "Polling tasks currently awaiting a payment outcome.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.PollTicks,
			m.GatewayDuration,
			m.OrderOutcomes,
			m.OversellTotal,
			m.ActivePollers,
		)
	}
	return m
}
