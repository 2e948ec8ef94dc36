// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics for engines and channels, exported through Prometheus.
// Every method tolerates a nil receiver so metrics stay optional.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Metrics groups the collectors shared by every engine of a process.
type Metrics struct {
	polls        *prometheus.CounterVec
	events       *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
	pkgsIn       prometheus.Counter
	pkgsOut      prometheus.Counter
	errors       *prometheus.CounterVec
	channels     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loofah", Name: "polls_total",
			Help: "Poll cycles run, by engine.",
		}, []string{"engine"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loofah", Name: "events_dispatched_total",
			Help: "Readiness or completion events dispatched to handlers.",
		}, []string{"engine", "event"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loofah", Name: "deferred_tasks_total",
			Help: "Tasks run through the deferred task queue.",
		}, []string{"engine"}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loofah", Name: "bytes_read_total",
			Help: "Bytes read from sockets.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loofah", Name: "bytes_written_total",
			Help: "Bytes written to sockets.",
		}),
		pkgsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loofah", Name: "packages_received_total",
			Help: "Complete frames dispatched to package handlers.",
		}),
		pkgsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loofah", Name: "packages_sent_total",
			Help: "Frames fully flushed to sockets.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loofah", Name: "channel_errors_total",
			Help: "Errors surfaced to channel handlers, by kind.",
		}, []string{"kind"}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loofah", Name: "open_channels",
			Help: "Package channels currently open.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	for _, c := range []prometheus.Collector{
		m.polls, m.events, m.tasks, m.bytesRead, m.bytesWritten,
		m.pkgsIn, m.pkgsOut, m.errors, m.channels,
	} {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Poll(engine string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(engine).Inc()
}

func (m *Metrics) Event(engine, event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(engine, event).Inc()
}

func (m *Metrics) Tasks(engine string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.tasks.WithLabelValues(engine).Add(float64(n))
}

func (m *Metrics) BytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) BytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) PackageReceived() {
	if m == nil {
		return
	}
	m.pkgsIn.Inc()
}

func (m *Metrics) PackageSent() {
	if m == nil {
		return
	}
	m.pkgsOut.Inc()
}

func (m *Metrics) ChannelError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ChannelOpened() {
	if m == nil {
		return
	}
	m.channels.Inc()
}

func (m *Metrics) ChannelClosed() {
	if m == nil {
		return
	}
	m.channels.Dec()
}
