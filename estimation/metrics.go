package estimation

import (
	"github.com/chainpulse/blockwatch/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourceSuccessCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "source_success_total",
		Help:      "Aggregation calls where this source family produced a usable result",
	}, []string{"source"})

	sourceFailureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "source_failure_total",
		Help:      "Aggregation calls where this source family was exhausted",
	}, []string{"source"})

	aggregatedHeightGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blockwatch",
		Name:      "aggregated_height",
		Help:      "The most recent consensus height per network",
	}, []string{"network"})
)

func observeSourceSuccess(source string) {
	sourceSuccessCounter.WithLabelValues(source).Inc()
}

func observeSourceFailure(source string) {
	sourceFailureCounter.WithLabelValues(source).Inc()
}

func setAggregatedHeight(network models.Network, height int64) {
	aggregatedHeightGauge.WithLabelValues(network.String()).Set(float64(height))
}
