package metrics

import (
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInitMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "gateway")

	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}
	if m.DispatchesTotal == nil {
		t.Error("DispatchesTotal should not be nil")
	}
	if m.CommandDuration == nil {
		t.Error("CommandDuration should not be nil")
	}
	if m.AlarmsTotal == nil {
		t.Error("AlarmsTotal should not be nil")
	}
}

func TestGet(t *testing.T) {
	defaultMetrics = nil

	m := Get()
	if m == nil {
		t.Error("Get() should not return nil")
	}

	m2 := Get()
	if m2 != m {
		t.Error("Get() should return same instance")
	}
}

func TestRecordDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "dispatch")
	m.RecordDispatch("shuttle-1", "Inbound")
	m.RecordDispatch("shuttle-1", "Outbound")
}

func TestRecordCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "command")

	m.RecordCommand("Inbound", "completed", 500*time.Millisecond)
	m.RecordCommand("Outbound", "failed", 1*time.Second)
}

func TestRecordAlarmAndGates(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "alarm")

	m.RecordAlarm("shuttle-1", "device")
	m.RecordAlarm("", "global")
	m.SetDeviceGateOpen("shuttle-1", false)
	m.SetGlobalAlarmActive(true)
}

func TestRecordSignalPoll(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "signal")

	m.RecordSignalPoll("shuttle-1", "none")
	m.RecordSignalPoll("shuttle-1", "completed")
}

func TestRecordValidatorCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "validator")

	m.RecordValidatorCall("ok", 50*time.Millisecond)
	m.RecordValidatorCall("rate_limited", 0)
}

func TestSetServiceInfo(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "info")

	m.SetServiceInfo("1.0.0", "production")
}

func TestRuntimeCollector(t *testing.T) {
	collector := NewRuntimeCollector("test", "runtime")

	descCh := make(chan *prometheus.Desc, 10)
	collector.Describe(descCh)
	close(descCh)

	count := 0
	for range descCh {
		count++
	}
	if count < 5 {
		t.Errorf("expected at least 5 descriptors, got %d", count)
	}

	metricCh := make(chan prometheus.Metric, 10)
	collector.Collect(metricCh)
	close(metricCh)

	count = 0
	for range metricCh {
		count++
	}
	if count < 5 {
		t.Errorf("expected at least 5 metrics, got %d", count)
	}
}

func TestRequestTracker(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_in_flight",
	})

	tracker := NewRequestTracker(gauge)

	tracker.Start("dispatch")
	tracker.Start("dispatch")
	tracker.Start("recovery")

	if tracker.active["dispatch"] != 2 {
		t.Errorf("active[dispatch] = %d, want 2", tracker.active["dispatch"])
	}

	tracker.End("dispatch")
	if tracker.active["dispatch"] != 1 {
		t.Errorf("active[dispatch] = %d, want 1", tracker.active["dispatch"])
	}

	tracker.End("dispatch")
	tracker.End("dispatch")
	if tracker.active["dispatch"] < 0 {
		t.Error("active count should not go negative")
	}
}

func TestTimer(t *testing.T) {
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration",
			Buckets: []float64{.01, .1, 1},
		},
		[]string{"command_type"},
	)

	timer := NewTimer(histogram, "Inbound")

	time.Sleep(10 * time.Millisecond)

	duration := timer.ObserveDuration()
	if duration < 10*time.Millisecond {
		t.Errorf("duration = %v, expected >= 10ms", duration)
	}
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler() should not return nil")
	}
}

func TestRuntimeCollector_GCPause(t *testing.T) {
	runtime.GC()

	collector := NewRuntimeCollector("test", "gc")
	metricCh := make(chan prometheus.Metric, 10)
	collector.Collect(metricCh)
	close(metricCh)

	found := false
	for range metricCh {
		found = true
	}
	if !found {
		t.Error("should have collected at least one metric")
	}
}
