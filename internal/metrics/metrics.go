// Package metrics exposes timer and server counters in Prometheus format.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codechrono/chrono/internal/timer"
)

// Metrics owns a private registry so tests and multiple hosts never share
// global collectors.
type Metrics struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	completed    *prometheus.CounterVec
	credited     *prometheus.CounterVec
	remaining    prometheus.Gauge
	running      prometheus.Gauge
	logFailures  prometheus.Counter
	clients      prometheus.Gauge
	commands     *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_timer_events_total",
			Help: "Timer snapshots published, by event.",
		}, []string{"event"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_sessions_completed_total",
			Help: "Sessions that counted down to zero, by phase.",
		}, []string{"phase"}),
		credited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_credited_seconds_total",
			Help: "Seconds credited to the session log, by phase.",
		}, []string{"phase"}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chrono_timer_remaining_seconds",
			Help: "Seconds left in the current session.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chrono_timer_running",
			Help: "1 while a session is counting down.",
		}),
		logFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chrono_log_write_failures_total",
			Help: "Session log writes that failed after retries.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chrono_ws_clients",
			Help: "Connected WebSocket clients.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_commands_total",
			Help: "Timer commands received, by command and result.",
		}, []string{"command", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrono_http_responses_total",
			Help: "HTTP responses sent, by status code.",
		}, []string{"code"}),
	}
	m.registry.MustRegister(
		m.events, m.completed, m.credited, m.remaining, m.running,
		m.logFailures, m.clients, m.commands, m.httpRequests,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveSnapshot updates timer metrics. Safe as a snapshot handler.
func (m *Metrics) ObserveSnapshot(s timer.Snapshot) {
	m.events.WithLabelValues(string(s.Event)).Inc()
	m.remaining.Set(float64(s.Remaining))
	if s.TaskActive && !s.Paused && s.Remaining > 0 {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
	if s.Credited > 0 {
		m.credited.WithLabelValues(s.Phase.String()).Add(float64(s.Credited))
	}
	if s.Event == timer.EventComplete {
		m.completed.WithLabelValues(s.Phase.String()).Inc()
	}
}

// LogWriteFailed counts a session log write that was given up on.
func (m *Metrics) LogWriteFailed(error) { m.logFailures.Inc() }

// SetClients records the number of connected WebSocket clients.
func (m *Metrics) SetClients(n int) { m.clients.Set(float64(n)) }

// Command counts a timer command. err is the command's result.
func (m *Metrics) Command(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(name, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts responses by status code.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.httpRequests.WithLabelValues(strconv.Itoa(rw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}
