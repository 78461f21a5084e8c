package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmdesk_sync_runs_total",
		Help: "Completed sync passes by kind and outcome.",
	}, []string{"kind", "outcome"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alarmdesk_sync_duration_seconds",
		Help:    "Sync pass duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	syncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmdesk_sync_records_total",
		Help: "Records touched by sync passes, by kind and action.",
	}, []string{"kind", "action"})

	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmdesk_upstream_requests_total",
		Help: "Zabbix JSON-RPC requests by method and outcome.",
	}, []string{"method", "outcome"})
)

// observeUpstream is the zabbix.Observer wired into the module's client.
func observeUpstream(method, outcome string) {
	upstreamRequestsTotal.WithLabelValues(method, outcome).Inc()
}

func recordResult(res *Result) {
	add := func(action string, n int) {
		if n > 0 {
			syncRecordsTotal.WithLabelValues(res.Kind, action).Add(float64(n))
		}
	}
	add("created", res.Created)
	add("updated", res.Updated)
	add("skipped", res.Skipped)
	add("failed", res.Failed)
	add("marked_offline", int(res.MarkedOffline))
}
