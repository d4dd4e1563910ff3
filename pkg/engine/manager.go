package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"socialsync/pkg/transport"
)

// maxIdleWait caps how long the loop sleeps when no engine reports a
// deadline, so a missed wake never stalls the loop for good.
const maxIdleWait = 5 * time.Second

// Manager drives the registered engines: it computes the earliest
// NextRunTime across all of them, sleeps until then (or until poked) and
// runs every engine that is due.
type Manager struct {
	mu      sync.Mutex
	engines map[transport.EngineID]Engine

	wake chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		engines: make(map[transport.EngineID]Engine),
		wake:    make(chan struct{}, 1),
	}
}

// Register adds an engine to the loop. Call before Run.
func (m *Manager) Register(e Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[e.ID()] = e
	slog.Info("Engine registered", "component", "EngineManager", "engine", e.ID())
}

// Poke tells the engine that an outcome is ready and wakes the loop. Safe
// to call from any goroutine; wired as the QueueManager's outcome callback.
func (m *Manager) Poke(id transport.EngineID) {
	m.mu.Lock()
	e := m.engines[id]
	m.mu.Unlock()

	if e != nil {
		e.OnOutcome()
	}
	m.Wake()
}

// Wake nudges the loop to recompute run times immediately.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run is the main loop. Blocks until the context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	slog.Info("Starting main loop", "component", "EngineManager")

	for {
		wait := m.runDue(time.Now())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Context cancelled, shutting down", "component", "EngineManager")
			return
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// runDue executes every engine whose run time has arrived and returns how
// long to sleep before the next one is due.
func (m *Manager) runDue(now time.Time) time.Duration {
	m.mu.Lock()
	engines := make([]Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	nowMs := now.UnixMilli()
	for _, e := range engines {
		next := e.NextRunTime(now)
		if next != NoRun && next <= nowMs {
			e.Run()
		}
	}

	// Recompute after running: engines often request an immediate re-run
	// while draining a batch.
	wait := maxIdleWait
	for _, e := range engines {
		next := e.NextRunTime(time.Now())
		if next == NoRun {
			continue
		}
		d := time.Duration(next-time.Now().UnixMilli()) * time.Millisecond
		if d < 0 {
			d = 0
		}
		if d < wait {
			wait = d
		}
	}
	return wait
}
