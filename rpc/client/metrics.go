package client

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	redirects      = metrics.NewCounter(`dtree_client_redirects_total`)
	retries        = metrics.NewCounter(`dtree_client_retries_total`)
	leaderLookups  = metrics.NewCounter(`dtree_client_leader_lookups_total`)
	keepAlivesSent = metrics.NewCounter(`dtree_client_keepalives_total`)
)

// observeRequest counts a finished request and records its latency
func observeRequest(kind string, err error, start time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dtree_client_requests_total{kind=%q,result=%q}`, kind, result)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dtree_client_request_duration_seconds{kind=%q}`, kind)).UpdateDuration(start)
}
