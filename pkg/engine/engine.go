// Package engine defines the engine contract and the cooperative run-loop
// that drives every engine. Engines never spawn threads for their core
// logic; the manager invokes Run whenever NextRunTime signals readiness.
package engine

import (
	"time"

	"socialsync/pkg/transport"
)

// NoRun is the NextRunTime result meaning the engine has nothing to do.
const NoRun = int64(-1)

// Engine is one subsystem plugged into the manager loop.
type Engine interface {
	// ID identifies the engine; outcomes carrying this ID are its.
	ID() transport.EngineID
	// NextRunTime returns the absolute time in unix milliseconds at which
	// the engine next wants to run, 0 for "immediately", or NoRun.
	NextRunTime(now time.Time) int64
	// Run performs one cooperative slice of work. Must not block.
	Run()
	// OnOutcome tells the engine an outcome is ready for it to claim.
	OnOutcome()
}
