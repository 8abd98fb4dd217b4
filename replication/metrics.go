package replication

import (
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/prometheus/client_golang/prometheus"
)

/*
Metrics are the Prometheus collectors updated by a Session. A nil *Metrics
is valid and records nothing.
*/
type Metrics struct {
	messages    *prometheus.CounterVec
	feedback    prometheus.Counter
	keepalives  prometheus.Counter
	receivedLSN prometheus.Gauge
	flushedLSN  prometheus.Gauge
	state       prometheus.Gauge
}

/*
NewMetrics creates the collectors and registers them with "reg".
*/
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replication_messages_total",
			Help: "pgoutput messages decoded, by message type",
		}, []string{"type"}),
		feedback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replication_feedback_sent_total",
			Help: "standby status updates sent to the server",
		}),
		keepalives: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replication_keepalives_total",
			Help: "keepalive messages received from the server",
		}),
		receivedLSN: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replication_received_lsn",
			Help: "highest WAL position received",
		}),
		flushedLSN: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replication_flushed_lsn",
			Help: "WAL position last reported as flushed",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replication_session_state",
			Help: "session state: 0 connecting, 1 identified, 2 slot ready, 3 streaming, 4 terminated",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.messages, m.feedback, m.keepalives, m.receivedLSN, m.flushedLSN, m.state,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) message(t pgoutput.MessageType) {
	if m != nil {
		m.messages.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) keepalive() {
	if m != nil {
		m.keepalives.Inc()
	}
}

func (m *Metrics) sent(received, flushed pgoutput.LSN) {
	if m != nil {
		m.feedback.Inc()
		m.receivedLSN.Set(float64(received))
		m.flushedLSN.Set(float64(flushed))
	}
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
