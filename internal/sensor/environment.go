package sensor

import (
	"sync/atomic"
	"time"
)

// Default drift correction limits.
const (
	DefaultMaxDriftUntilSync = 2 * time.Second
	DefaultMaxForwardDrift   = 200 * time.Millisecond
	DefaultMaxBackwardDrift  = time.Second
)

// DriftCorrection holds the engine wide drift correction limits.
type DriftCorrection struct {
	Enabled bool
	// MaxDriftUntilSync is the absolute drift above which a full sync is requested.
	MaxDriftUntilSync time.Duration
	// MaxForwardDrift is how far a sensor may run ahead before samples are removed.
	MaxForwardDrift time.Duration
	// MaxBackwardDrift is how far a sensor may lag before samples are duplicated.
	MaxBackwardDrift time.Duration
}

// DefaultDriftCorrection returns the limits used when nothing is configured.
func DefaultDriftCorrection() DriftCorrection {
	return DriftCorrection{
		Enabled:           true,
		MaxDriftUntilSync: DefaultMaxDriftUntilSync,
		MaxForwardDrift:   DefaultMaxForwardDrift,
		MaxBackwardDrift:  DefaultMaxBackwardDrift,
	}
}

// Environment is the engine state a sensor consults once per tick. It is
// passed in at construction.
type Environment interface {
	DriftCorrection() DriftCorrection
	AutoSyncEnabled() bool
	// RequestSync schedules an engine wide sync. It must not block.
	RequestSync()
}

// StaticEnvironment is a fixed Environment for sensors running without an
// engine. It counts sync requests instead of acting on them.
type StaticEnvironment struct {
	Drift    DriftCorrection
	AutoSync bool

	syncRequests atomic.Int64
}

var _ Environment = (*StaticEnvironment)(nil)

func (e *StaticEnvironment) DriftCorrection() DriftCorrection { return e.Drift }
func (e *StaticEnvironment) AutoSyncEnabled() bool { return e.AutoSync }
func (e *StaticEnvironment) RequestSync() { e.syncRequests.Add(1) }

// SyncRequests returns how often RequestSync was called.
func (e *StaticEnvironment) SyncRequests() int64 { return e.syncRequests.Load() }
