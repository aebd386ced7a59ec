package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	StatesIssuedTotal     *prometheus.CounterVec
	StatesConsumedTotal   *prometheus.CounterVec
	SignUpsCompletedTotal prometheus.Counter
	SignInsCompletedTotal prometheus.Counter
	PermissionGrantsTotal prometheus.Counter
	FlowFailuresTotal     *prometheus.CounterVec
)

func init() {
	// Metrics are usable without registration so library consumers and
	// tests never hit nil counters.
	InitCustomMetrics(nil)
}

// InitCustomMetrics initializes and registers the flow metrics. It should
// be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	StatesIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_states_issued_total",
		Help: "Total number of flow state tokens issued, by kind.",
	}, []string{"kind"})
	StatesConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_states_consumed_total",
		Help: "Total number of flow state tokens consumed, by kind.",
	}, []string{"kind"})
	SignUpsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_signups_completed_total",
		Help: "Total number of completed sign-ups.",
	})
	SignInsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_signins_completed_total",
		Help: "Total number of completed sign-ins.",
	})
	PermissionGrantsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_permission_grants_total",
		Help: "Total number of completed permission elevations.",
	})
	FlowFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authflow_flow_failures_total",
		Help: "Total number of failed flow attempts, by error code.",
	}, []string{"code"})

	if reg == nil {
		return
	}
	collectors := []prometheus.Collector{
		StatesIssuedTotal,
		StatesConsumedTotal,
		SignUpsCompletedTotal,
		SignInsCompletedTotal,
		PermissionGrantsTotal,
		FlowFailuresTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register flow metric")
		}
	}
}
