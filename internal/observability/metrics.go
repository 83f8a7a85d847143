package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigner_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigner_dispatch_runs_total", Help: "Campaign dispatch runs"},
		[]string{"result"},
	)
	ChannelSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigner_channel_send_total", Help: "Channel gateway send outcomes"},
		[]string{"result"},
	)
	ChannelLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "campaigner_channel_send_latency_seconds", Help: "Channel gateway send latency"},
	)
	Checkpoints = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "campaigner_progress_checkpoints_total", Help: "Per-batch progress checkpoints persisted"},
	)
	Enhancements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigner_enhance_total", Help: "Generative enhancement outcomes"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, DispatchRuns, ChannelSend, ChannelLatency, Checkpoints, Enhancements)
}
