// Package metrics provides Prometheus collectors for the acquisition engine.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/biosync/internal/device"
	"github.com/tphakala/biosync/internal/logger"
)

// AcquisitionMetrics contains the sensor, device and engine metrics.
type AcquisitionMetrics struct {
	SensorLatency        *prometheus.GaugeVec
	SensorRealSampleRate *prometheus.GaugeVec
	SensorQueueDepth     *prometheus.GaugeVec
	SensorDrift          *prometheus.GaugeVec
	SensorDriftSamples   *prometheus.CounterVec
	SensorLostSamples    *prometheus.CounterVec
	DeviceBattery        *prometheus.GaugeVec
	DeviceState          *prometheus.GaugeVec
	DeviceDelivered      *prometheus.CounterVec
	DeviceOverruns       *prometheus.CounterVec
	SyncRequests         prometheus.Counter
	Syncs                prometheus.Counter
	TickDuration         prometheus.Histogram

	// sensor counters restart at every sync; the last seen values turn them
	// into monotonic increments
	mu   sync.Mutex
	last map[string]uint64
}

// NewAcquisitionMetrics creates and registers the acquisition metrics.
func NewAcquisitionMetrics(registry *prometheus.Registry) (*AcquisitionMetrics, error) {
	m := &AcquisitionMetrics{last: make(map[string]uint64)}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register acquisition metrics: %w", err)
	}
	return m, nil
}

func (m *AcquisitionMetrics) initMetrics() {
	sensorLabels := []string{LabelDevice, LabelSensor}
	deviceLabels := []string{LabelDevice}

	m.SensorLatency = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sensor_latency_seconds",
		Help:      "Estimated sensor latency including burst delay",
	}, sensorLabels)

	m.SensorRealSampleRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sensor_real_sample_rate_hz",
		Help:      "Measured input sample rate since the last sync",
	}, sensorLabels)

	m.SensorQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sensor_queue_depth",
		Help:      "Samples waiting in the sensor inbox",
	}, sensorLabels)

	m.SensorDrift = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sensor_drift_seconds",
		Help:      "Last measured drift of the sensor output against engine time, positive when late",
	}, sensorLabels)

	m.SensorDriftSamples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sensor_drift_samples_total",
		Help:      "Samples added or removed by drift correction",
	}, []string{LabelDevice, LabelSensor, LabelDirection})

	m.SensorLostSamples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sensor_lost_samples_total",
		Help:      "Samples reported lost by the driver",
	}, sensorLabels)

	m.DeviceBattery = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "device_battery_ratio",
		Help:      "Normalized battery charge level",
	}, deviceLabels)

	m.DeviceState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "device_state",
		Help:      "Device connection state (0 disconnected, 1 idle, 2 streaming, 3 test, 4 timeout, 5 error)",
	}, deviceLabels)

	m.DeviceDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "device_delivered_samples_total",
		Help:      "Output samples consumed from the device sensors",
	}, deviceLabels)

	m.DeviceOverruns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "device_overrun_samples_total",
		Help:      "Output samples overwritten before they were consumed",
	}, deviceLabels)

	m.SyncRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "engine_sync_requests_total",
		Help:      "Accepted engine sync requests",
	})

	m.Syncs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "engine_syncs_total",
		Help:      "Completed engine syncs",
	})

	m.TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "engine_tick_duration_seconds",
		Help:      "Time spent in one engine update",
		Buckets:   prometheus.ExponentialBuckets(BucketStart10us, BucketFactor2, BucketCount12),
	})
}

// RecordTick observes the duration of one engine update.
func (m *AcquisitionMetrics) RecordTick(d time.Duration) {
	m.TickDuration.Observe(d.Seconds())
}

// RecordSyncRequest counts an accepted sync request.
func (m *AcquisitionMetrics) RecordSyncRequest() {
	m.SyncRequests.Inc()
}

// RecordSync counts a completed sync.
func (m *AcquisitionMetrics) RecordSync() {
	m.Syncs.Inc()
}

// RecordDevice updates the device and sensor series from a statistics snapshot.
func (m *AcquisitionMetrics) RecordDevice(st device.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeviceBattery.WithLabelValues(st.Name).Set(st.Battery)
	m.DeviceState.WithLabelValues(st.Name).Set(float64(st.State))
	m.DeviceDelivered.WithLabelValues(st.Name).Add(m.advance("delivered/"+st.Name, st.Delivered))
	m.DeviceOverruns.WithLabelValues(st.Name).Add(m.advance("overruns/"+st.Name, st.Overruns))

	for i := range st.Sensors {
		s := &st.Sensors[i]
		key := st.Name + "/" + s.Name

		m.SensorLatency.WithLabelValues(st.Name, s.Name).Set(s.Latency.Seconds())
		m.SensorRealSampleRate.WithLabelValues(st.Name, s.Name).Set(s.RealSampleRate)
		m.SensorQueueDepth.WithLabelValues(st.Name, s.Name).Set(float64(s.QueueLength))
		m.SensorDrift.WithLabelValues(st.Name, s.Name).Set(s.Drift.Seconds())

		m.SensorDriftSamples.WithLabelValues(st.Name, s.Name, DirectionAdded).
			Add(m.advance("added/"+key, s.DriftSamplesAdded))
		m.SensorDriftSamples.WithLabelValues(st.Name, s.Name, DirectionRemoved).
			Add(m.advance("removed/"+key, s.DriftSamplesRemoved))
		m.SensorLostSamples.WithLabelValues(st.Name, s.Name).
			Add(m.advance("lost/"+key, s.LostSamples))
	}
}

// advance returns the increase of a cumulative value since the last call. A
// value below the previous one means the source was reset and counts in full.
func (m *AcquisitionMetrics) advance(key string, current uint64) float64 {
	last, ok := m.last[key]
	m.last[key] = current
	if !ok || current < last {
		return float64(current)
	}
	return float64(current - last)
}

// Forget drops all series of a removed device.
func (m *AcquisitionMetrics) Forget(deviceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match := prometheus.Labels{LabelDevice: deviceName}
	for _, vec := range []*prometheus.MetricVec{
		m.SensorLatency.MetricVec, m.SensorRealSampleRate.MetricVec,
		m.SensorQueueDepth.MetricVec, m.SensorDrift.MetricVec,
		m.SensorDriftSamples.MetricVec, m.SensorLostSamples.MetricVec,
		m.DeviceBattery.MetricVec, m.DeviceState.MetricVec,
		m.DeviceDelivered.MetricVec, m.DeviceOverruns.MetricVec,
	} {
		vec.DeletePartialMatch(match)
	}
	for key := range m.last {
		if belongsTo(key, deviceName) {
			delete(m.last, key)
		}
	}
	GetLogger().Debug("device metric series removed", logger.String("device", deviceName))
}

// belongsTo matches keys of the form kind/device or kind/device/sensor.
func belongsTo(key, deviceName string) bool {
	parts := strings.SplitN(key, "/", 3)
	return len(parts) >= 2 && parts[1] == deviceName
}

// Describe implements the prometheus.Collector interface.
func (m *AcquisitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SensorLatency.Describe(ch)
	m.SensorRealSampleRate.Describe(ch)
	m.SensorQueueDepth.Describe(ch)
	m.SensorDrift.Describe(ch)
	m.SensorDriftSamples.Describe(ch)
	m.SensorLostSamples.Describe(ch)
	m.DeviceBattery.Describe(ch)
	m.DeviceState.Describe(ch)
	m.DeviceDelivered.Describe(ch)
	m.DeviceOverruns.Describe(ch)
	m.SyncRequests.Describe(ch)
	m.Syncs.Describe(ch)
	m.TickDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AcquisitionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SensorLatency.Collect(ch)
	m.SensorRealSampleRate.Collect(ch)
	m.SensorQueueDepth.Collect(ch)
	m.SensorDrift.Collect(ch)
	m.SensorDriftSamples.Collect(ch)
	m.SensorLostSamples.Collect(ch)
	m.DeviceBattery.Collect(ch)
	m.DeviceState.Collect(ch)
	m.DeviceDelivered.Collect(ch)
	m.DeviceOverruns.Collect(ch)
	m.SyncRequests.Collect(ch)
	m.Syncs.Collect(ch)
	m.TickDuration.Collect(ch)
}
