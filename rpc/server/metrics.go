package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// observeRequest counts a handled request by type and status and records its latency
func observeRequest(msgType common.MessageType, status common.Status, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dtree_server_requests_total{type=%q,status=%q}`, msgType, status)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dtree_server_request_duration_seconds{type=%q}`, msgType)).UpdateDuration(start)
}

var (
	sessionsRegistered = metrics.NewCounter(`dtree_server_sessions_registered_total`)
	sessionsExpired    = metrics.NewCounter(`dtree_server_sessions_expired_total`)
	streamedFrames     = metrics.NewCounter(`dtree_server_stream_frames_total`)
)
