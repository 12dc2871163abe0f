package monitoring

import (
	"time"

	"streamhub/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.RealtimeMetrics.
type PrometheusCollector struct {
	connectionsOpen     prometheus.Gauge
	connectionsAuthed   prometheus.Gauge
	connectionsTotal    prometheus.Counter
	framesDropped       prometheus.Counter
	roomViewers         *prometheus.GaugeVec
	messagesHandled     *prometheus.CounterVec
	chatMessages        *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec

	handlerDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the realtime metrics on reg. Tests pass
// a fresh prometheus.NewRegistry(); the server passes the default one.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		connectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamhub_connections_open",
			Help: "Number of open realtime connections",
		}),

		connectionsAuthed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamhub_connections_authenticated",
			Help: "Number of open connections bound to an identity",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamhub_connections_total",
			Help: "Total number of accepted realtime connections",
		}),

		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamhub_frames_dropped_total",
			Help: "Outbound frames dropped on full or closed queues",
		}),

		roomViewers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamhub_room_viewers",
			Help: "Current viewer count of each stream room",
		}, []string{"stream_id"}),

		messagesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamhub_messages_handled_total",
			Help: "Inbound messages by type and outcome",
		}, []string{"type", "outcome"}),

		chatMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamhub_chat_messages_total",
			Help: "Persisted chat messages by kind",
		}, []string{"kind"}),

		persistenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamhub_persistence_failures_total",
			Help: "Failed store operations",
		}, []string{"operation"}),

		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamhub_message_handler_duration_seconds",
			Help:    "Time spent handling one inbound message",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"type"}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsOpen.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed(authenticated bool) {
	p.connectionsOpen.Dec()
	if authenticated {
		p.connectionsAuthed.Dec()
	}
}

func (p *PrometheusCollector) ConnectionAuthenticated() {
	p.connectionsAuthed.Inc()
}

// RoomViewers drops the series of a room once it empties, so ended streams
// do not accumulate label values.
func (p *PrometheusCollector) RoomViewers(roomID domain.StreamID, count int) {
	if count == 0 {
		p.roomViewers.DeleteLabelValues(string(roomID))
		return
	}
	p.roomViewers.WithLabelValues(string(roomID)).Set(float64(count))
}

func (p *PrometheusCollector) MessageHandled(msgType domain.EventType, outcome string, duration time.Duration) {
	p.messagesHandled.WithLabelValues(string(msgType), outcome).Inc()
	p.handlerDuration.WithLabelValues(string(msgType)).Observe(duration.Seconds())
}

func (p *PrometheusCollector) ChatMessagePersisted(kind domain.MessageKind) {
	p.chatMessages.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) FramesDropped(n int) {
	p.framesDropped.Add(float64(n))
}

func (p *PrometheusCollector) PersistenceFailed(operation string) {
	p.persistenceFailures.WithLabelValues(operation).Inc()
}
