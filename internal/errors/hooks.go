package errors

import (
	"sync"
	"sync/atomic"
)

// ErrorHook receives every EnhancedError built while at least one hook is registered.
// Hooks run synchronously on the caller's goroutine and must not block.
type ErrorHook func(ee *EnhancedError)

var (
	hooksMu            sync.RWMutex
	errorHooks         []ErrorHook
	hasActiveReporting atomic.Bool
)

// AddErrorHook registers a hook. Registering any hook switches Build to the
// full path with component and category detection.
func AddErrorHook(hook ErrorHook) {
	if hook == nil {
		return
	}
	hooksMu.Lock()
	defer hooksMu.Unlock()
	errorHooks = append(errorHooks, hook)
	hasActiveReporting.Store(true)
}

// ClearErrorHooks removes all registered hooks.
func ClearErrorHooks() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	errorHooks = nil
	hasActiveReporting.Store(false)
}

func runErrorHooks(ee *EnhancedError) {
	hooksMu.RLock()
	hooks := errorHooks
	hooksMu.RUnlock()

	if len(hooks) == 0 {
		return
	}

	for _, hook := range hooks {
		hook(ee)
	}
	ee.MarkReported()
}
