package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/RichardoC/relaychat/internal/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the relay's collectors on a private registry so tests can
// build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	// request count by route pattern and status code
	RequestsTotal *prometheus.CounterVec
	// request latency by route pattern
	RequestLatency *prometheus.HistogramVec
	// chat exchanges by outcome: ok, bad_request, upstream_error, transport_error, stream_error
	ChatTotal *prometheus.CounterVec
	// time until the backend answered with headers
	UpstreamLatency prometheus.Histogram
	// SSE frames written by kind: delta, error, done
	FramesTotal *prometheus.CounterVec
	// token usage per stored message by role
	TokenUsage *prometheus.HistogramVec
	// uploaded files by extension
	UploadFiles *prometheus.CounterVec
	// streams currently open towards browsers
	ActiveStreams prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaychat_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "code"},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaychat_http_request_duration_seconds",
				Help:    "HTTP request latency distributions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ChatTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaychat_chat_exchanges_total",
				Help: "Chat exchanges relayed, by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relaychat_upstream_response_seconds",
				Help:    "Time until the backend chat endpoint returned headers",
				Buckets: prometheus.DefBuckets,
			},
		),
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaychat_sse_frames_total",
				Help: "SSE frames written to clients",
			},
			[]string{"kind"},
		),
		TokenUsage: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaychat_message_tokens",
				Help:    "Token count distributions per stored message",
				Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 4000},
			},
			[]string{"role"},
		),
		UploadFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaychat_upload_files_total",
				Help: "Files forwarded to the backend for ingestion",
			},
			[]string{"ext"},
		),
		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relaychat_active_streams",
				Help: "Chat streams currently open",
			},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestLatency,
		m.ChatTotal,
		m.UpstreamLatency,
		m.FramesTotal,
		m.TokenUsage,
		m.UploadFiles,
		m.ActiveStreams,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// CountFrames wraps sink so every frame written is counted.
func (m *Metrics) CountFrames(sink stream.Sink) stream.Sink {
	return &countingSink{Sink: sink, frames: m.FramesTotal}
}

type countingSink struct {
	stream.Sink
	frames *prometheus.CounterVec
}

func (c *countingSink) Delta(content string) error {
	err := c.Sink.Delta(content)
	if err == nil {
		c.frames.WithLabelValues("delta").Inc()
	}
	return err
}

func (c *countingSink) Error(raw json.RawMessage) error {
	err := c.Sink.Error(raw)
	if err == nil {
		c.frames.WithLabelValues("error").Inc()
	}
	return err
}

func (c *countingSink) Done() error {
	err := c.Sink.Done()
	if err == nil {
		c.frames.WithLabelValues("done").Inc()
	}
	return err
}
