package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global metrics container for the gateway.
type Metrics struct {
	// Dispatch / matchmaker
	DispatchesTotal   *prometheus.CounterVec
	DispatchStaggerGauge prometheus.Gauge
	MatchQueueDepth   *prometheus.GaugeVec

	// Command execution
	CommandsTotal    *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	CommandsInFlight prometheus.Gauge

	// Gates / alarms
	AlarmsTotal       *prometheus.CounterVec
	DeviceGateOpen    *prometheus.GaugeVec
	GlobalAlarmActive prometheus.Gauge

	// Signal monitor
	SignalPollsTotal *prometheus.CounterVec

	// Barcode validator
	ValidatorCallsTotal *prometheus.CounterVec
	ValidatorDuration   *prometheus.HistogramVec

	// Service info
	ServiceInfo *prometheus.GaugeVec

	// HTTP surface
	HTTPRequestsInFlight prometheus.Gauge
	httpTracker          *RequestTracker
}

var defaultMetrics *Metrics

// InitMetrics initializes and registers the gateway's metrics.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		DispatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dispatches_total",
				Help:      "Total number of commands dispatched to a slot worker",
			},
			[]string{"device_id", "command_type"},
		),

		DispatchStaggerGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dispatch_stagger_seconds",
				Help:      "Configured stagger delay between consecutive dispatches",
			},
		),

		MatchQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "match_queue_depth",
				Help:      "Current depth of the pending command queue per device",
			},
			[]string{"device_id"},
		),

		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commands_total",
				Help:      "Total number of commands completed, by terminal status",
			},
			[]string{"command_type", "status"},
		),

		CommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "command_duration_seconds",
				Help:      "Duration of a command from dispatch to terminal result",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"command_type"},
		),

		CommandsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commands_in_flight",
				Help:      "Current number of commands being executed by slot workers",
			},
		),

		AlarmsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "alarms_total",
				Help:      "Total number of alarms observed by the signal monitor",
			},
			[]string{"device_id", "scope"}, // scope: device, global
		),

		DeviceGateOpen: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "device_gate_open",
				Help:      "1 if the device error gate is open (accepting dispatch), 0 otherwise",
			},
			[]string{"device_id"},
		),

		GlobalAlarmActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "global_alarm_active",
				Help:      "1 if the global alarm gate is tripped, 0 otherwise",
			},
		),

		SignalPollsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "signal_polls_total",
				Help:      "Total number of signal-monitor poll cycles, by classification",
			},
			[]string{"device_id", "classification"}, // none, alarm, completed, failed
		),

		ValidatorCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "barcode_validator_calls_total",
				Help:      "Total number of outbound barcode-validation calls",
			},
			[]string{"status"}, // ok, error, cached, rate_limited
		),

		ValidatorDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "barcode_validator_duration_seconds",
				Help:      "Duration of outbound barcode-validation calls",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"status"},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service build information",
			},
			[]string{"version", "environment"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being served by the operator API",
			},
		),
	}
	m.httpTracker = NewRequestTracker(m.HTTPRequestsInFlight)

	prometheus.MustRegister(NewRuntimeCollector(namespace, subsystem))

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, lazily initializing it.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("shuttlegate", "")
	}
	return defaultMetrics
}

// RecordDispatch records a command dispatch to a slot worker.
func (m *Metrics) RecordDispatch(deviceID, commandType string) {
	m.DispatchesTotal.WithLabelValues(deviceID, commandType).Inc()
}

// RecordCommand records the terminal status and duration of a command.
func (m *Metrics) RecordCommand(commandType, status string, duration time.Duration) {
	m.CommandsTotal.WithLabelValues(commandType, status).Inc()
	m.CommandDuration.WithLabelValues(commandType).Observe(duration.Seconds())
}

// IncCommandsInFlight marks one more command as actively executing.
func (m *Metrics) IncCommandsInFlight() {
	m.CommandsInFlight.Inc()
}

// DecCommandsInFlight marks a command as no longer executing.
func (m *Metrics) DecCommandsInFlight() {
	m.CommandsInFlight.Dec()
}

// SetMatchQueueDepth reflects the matchmaker's pending-FIFO depth for one
// device, sampled after each dispatch pass.
func (m *Metrics) SetMatchQueueDepth(deviceID string, depth int) {
	m.MatchQueueDepth.WithLabelValues(deviceID).Set(float64(depth))
}

// RecordAlarm records an alarm observed by the signal monitor.
func (m *Metrics) RecordAlarm(deviceID, scope string) {
	m.AlarmsTotal.WithLabelValues(deviceID, scope).Inc()
}

// SetDeviceGateOpen reflects the current state of a device's error gate.
func (m *Metrics) SetDeviceGateOpen(deviceID string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.DeviceGateOpen.WithLabelValues(deviceID).Set(v)
}

// SetGlobalAlarmActive reflects the current state of the global alarm gate.
func (m *Metrics) SetGlobalAlarmActive(active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.GlobalAlarmActive.Set(v)
}

// RecordSignalPoll records one signal-monitor poll cycle.
func (m *Metrics) RecordSignalPoll(deviceID, classification string) {
	m.SignalPollsTotal.WithLabelValues(deviceID, classification).Inc()
}

// RecordValidatorCall records an outbound barcode-validation call.
func (m *Metrics) RecordValidatorCall(status string, duration time.Duration) {
	m.ValidatorCallsTotal.WithLabelValues(status).Inc()
	m.ValidatorDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// StartHTTPRequest marks one in-flight HTTP request under method.
func (m *Metrics) StartHTTPRequest(method string) {
	m.httpTracker.Start(method)
}

// EndHTTPRequest marks the completion of one in-flight HTTP request.
func (m *Metrics) EndHTTPRequest(method string) {
	m.httpTracker.End(method)
}

// SetServiceInfo publishes static service build information.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts an HTTP server exposing /metrics and /health.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
