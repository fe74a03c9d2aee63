package logger

import (
	"sync"
	"sync/atomic"
)

// generation changes whenever the global logger does, invalidating the
// cached component loggers derived from it.
var generation atomic.Uint64

var registry = struct {
	mu       sync.RWMutex
	explicit map[string]*Logger
	derived  map[string]derived
}{
	explicit: make(map[string]*Logger),
	derived:  make(map[string]derived),
}

type derived struct {
	gen uint64
	l   *Logger
}

// Register makes Get(name) return l instead of a logger derived from the
// global one.
func Register(name string, l *Logger) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.explicit[name] = l
}

// Unregister removes a logger added by Register.
func Unregister(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.explicit, name)
}

// Get returns the logger for a component: the registered one, or the
// global logger tagged with name.
func Get(name string) *Logger {
	gen := generation.Load()
	registry.mu.RLock()
	if l, ok := registry.explicit[name]; ok {
		registry.mu.RUnlock()
		return l
	}
	d, ok := registry.derived[name]
	registry.mu.RUnlock()
	if ok && d.gen == gen {
		return d.l
	}

	l := Global().WithComponent(name)
	registry.mu.Lock()
	registry.derived[name] = derived{gen: gen, l: l}
	registry.mu.Unlock()
	return l
}
