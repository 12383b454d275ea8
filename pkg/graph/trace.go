package graph

import (
	"sync"

	"github.com/potrek505/TEG-project/pkg/logger"
)

type TraceEventKind string

const (
	TraceEventNode  TraceEventKind = "node"
	TraceEventRoute TraceEventKind = "route"
)

// TraceEvent describes one step of a graph run.
type TraceEvent struct {
	Kind TraceEventKind

	Node       Node
	Next       Node
	DurationMs int64
	// Error is the failure reason of a node whose result was degraded.
	Error string
}

// Tracer is a sink for graph tracing events.
type Tracer interface {
	Record(event TraceEvent)
}

// LogTracer writes events to the debug log.
type LogTracer struct{}

func (LogTracer) Record(event TraceEvent) {
	switch event.Kind {
	case TraceEventNode:
		if event.Error != "" {
			logger.Warn("[Graph] node degraded", "node", event.Node, "duration_ms", event.DurationMs, "err", event.Error)
			return
		}
		logger.Debug("[Graph] node finished", "node", event.Node, "duration_ms", event.DurationMs)
	case TraceEventRoute:
		logger.Debug("[Graph] route", "from", event.Node, "to", event.Next)
	}
}

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *Recorder) Record(event TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent(nil), r.events...)
}

func record(t Tracer, event TraceEvent) {
	if t == nil {
		return
	}
	t.Record(event)
}
