package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_ws_connections_open",
			Help: "Currently open WebSocket connections",
		},
	)

	MessagesBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_messages_broadcast_total",
			Help: "Messages persisted and fanned out to a room",
		},
	)

	TypingSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_typing_signals_total",
			Help: "Typing signals relayed",
		},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_frames_dropped_total",
			Help: "Frames dropped on slow peer connections",
		},
	)

	FrameErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_frame_errors_total",
			Help: "Error frames returned to senders",
		},
		[]string{"reason"},
	)
)
