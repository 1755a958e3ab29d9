package metrics

import "github.com/tphakala/biosync/internal/engine"

// AcquisitionMetrics is the engine's production Recorder.
var _ engine.Recorder = (*AcquisitionMetrics)(nil)
