package metrics

import "time"

// Namespace prefixes every metric name.
const Namespace = "biosync"

// Label names.
const (
	LabelDevice    = "device"
	LabelSensor    = "sensor"
	LabelDirection = "direction"
	LabelComponent = "component"
	LabelCategory  = "category"
)

// Drift direction label values.
const (
	DirectionAdded   = "added"
	DirectionRemoved = "removed"
)

// Histogram bucket configuration.
const (
	// BucketStart10us is the starting bucket for tick durations (10us to ~40ms range).
	BucketStart10us = 0.00001
	BucketFactor2   = 2
	BucketCount12   = 12
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
