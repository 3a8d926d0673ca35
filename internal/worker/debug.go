package worker

import (
	"log"
	"os"
)

// traceTurn reports dispatch and cache decisions per turn. It is a no-op
// unless RESOLVEGO_TRACE_TURNS is set, and writes through its own logger
// so turn traces are separable from request logs.
var traceTurn = newTurnTracer()

func newTurnTracer() func(format string, args ...any) {
	if os.Getenv("RESOLVEGO_TRACE_TURNS") == "" {
		return func(string, ...any) {}
	}
	l := log.New(os.Stderr, "turn-trace ", log.LstdFlags|log.Lmicroseconds)
	return l.Printf
}
