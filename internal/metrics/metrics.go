package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taoyao-code/rf24-gateway/internal/link"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// RadioMetrics 射频链路指标，实现 link.Observer 与 subscription.Observer
type RadioMetrics struct {
	FramesReceived      *prometheus.CounterVec // labels: result=ok|bad_sync|bad_checksum|bad_length|short|unresolved|resync
	FramesSent          *prometheus.CounterVec // labels: result=ok|failed
	Batches             prometheus.Counter
	BatchSize           prometheus.Histogram
	QueueDepthGauge     prometheus.Gauge
	Subscriptions       prometheus.Gauge
	LinkState           prometheus.Gauge // 0=listening 1=paused_for_write 2=draining
	SubscriptionExpired prometheus.Counter
	PipeReprograms      prometheus.Counter
	JournalDropped      *prometheus.CounterVec // labels: sink
}

// NewRadioMetrics 注册并返回链路指标
func NewRadioMetrics(reg prometheus.Registerer) *RadioMetrics {
	m := &RadioMetrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rf24_frames_received_total",
			Help: "Inbound radio frames by decode result.",
		}, []string{"result"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rf24_frames_sent_total",
			Help: "Outbound radio frames by transmit result.",
		}, []string{"result"}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rf24_batches_total",
			Help: "Write windows opened by the writer loop.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rf24_batch_size",
			Help:    "Frames transmitted per write window.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		QueueDepthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rf24_queue_depth",
			Help: "Commands waiting in the outbound queue.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rf24_subscriptions",
			Help: "Active listener subscriptions.",
		}),
		LinkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rf24_link_state",
			Help: "Transceiver state: 0 listening, 1 paused for write, 2 draining.",
		}),
		SubscriptionExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rf24_subscriptions_expired_total",
			Help: "One-shot subscriptions evicted without a matching message.",
		}),
		PipeReprograms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rf24_pipe_reprogram_total",
			Help: "Times the read pipe set was reprogrammed on the driver.",
		}),
		JournalDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rf24_journal_dropped_total",
			Help: "Frame events dropped because the journal buffer was full.",
		}, []string{"sink"}),
	}
	reg.MustRegister(m.FramesReceived, m.FramesSent, m.Batches, m.BatchSize, m.QueueDepthGauge,
		m.Subscriptions, m.LinkState, m.SubscriptionExpired, m.PipeReprograms, m.JournalDropped)
	return m
}

func (m *RadioMetrics) FrameReceived(result string) {
	m.FramesReceived.WithLabelValues(result).Inc()
}

func (m *RadioMetrics) FrameSent(ok bool) {
	if ok {
		m.FramesSent.WithLabelValues("ok").Inc()
		return
	}
	m.FramesSent.WithLabelValues("failed").Inc()
}

func (m *RadioMetrics) BatchDone(size int) {
	m.Batches.Inc()
	m.BatchSize.Observe(float64(size))
}

func (m *RadioMetrics) QueueDepth(n int) { m.QueueDepthGauge.Set(float64(n)) }

func (m *RadioMetrics) StateChanged(s link.State) { m.LinkState.Set(float64(s)) }

func (m *RadioMetrics) PipesReprogrammed() { m.PipeReprograms.Inc() }

// Record subscription.Observer
func (m *RadioMetrics) Record(operation, status string) {
	switch operation {
	case "subscribe":
		m.Subscriptions.Inc()
	case "unsubscribe":
		m.Subscriptions.Dec()
	case "dispatch":
		if status == "delivered_once" {
			m.Subscriptions.Dec()
		}
	case "sweep":
		m.Subscriptions.Dec()
		m.SubscriptionExpired.Inc()
	}
}

// JournalDrop journal.Writer 缓冲满时回调
func (m *RadioMetrics) JournalDrop(sink string) { m.JournalDropped.WithLabelValues(sink).Inc() }
