// Package profiler implements a hierarchical per-request latency tree: a
// depth-first stack of named stages, each timed from open to close,
// serialized as a single JSON document attached to a response when the
// caller asked for debug output.
package profiler

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// node is one entry in the stage tree. Children preserve insertion order so
// serialization matches the order stages were opened, not map iteration
// order.
type node struct {
	name     string
	start    time.Time
	latency  time.Duration
	fields   map[string]any
	children []*node
}

func newNode(name string) *node {
	return &node{name: name, start: time.Now(), fields: map[string]any{}}
}

func (n *node) close() {
	n.latency = time.Since(n.start)
}

// MarshalJSON renders {"latency": <micros>, ...fields, ...children-by-name}.
func (n *node) MarshalJSON() ([]byte, error) {
	out := map[string]any{"latency": n.latency.Microseconds()}
	for k, v := range n.fields {
		out[k] = v
	}
	for _, c := range n.children {
		out[c.name] = c
	}
	return json.Marshal(out)
}

// Profiler is a tree of stages keyed by name. When disabled, every method
// is a no-op and AsJSONString returns the literal "{}".
type Profiler struct {
	mu      sync.Mutex
	enabled bool
	traceID uuid.UUID
	root    *node
	path    []*node
}

// New constructs a Profiler. When enabled is false every operation is a
// no-op.
func New(enabled bool) *Profiler {
	p := &Profiler{enabled: enabled}
	if enabled {
		p.traceID = uuid.New()
	}
	return p
}

// Enabled reports whether this profiler records anything.
func (p *Profiler) Enabled() bool {
	return p.enabled
}

// TraceID returns the profiler's correlation id, the zero UUID when
// disabled. It is not part of the AsJSONString output.
func (p *Profiler) TraceID() uuid.UUID {
	return p.traceID
}

// Start opens the root stage. Calling Start twice is a no-op.
func (p *Profiler) Start() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.path) != 0 {
		return
	}
	p.root = newNode("latency")
	p.path = []*node{p.root}
}

// Stop closes the root stage. If stages remain open below the root, a
// warning is logged and the root's latency is set directly from the first
// path entry as a fallback.
func (p *Profiler) Stop() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.path) == 0 {
		return
	}
	if len(p.path) == 1 {
		p.path[0].close()
		p.path = nil
		return
	}
	log.Printf("profiler: stages have not been closed, stages=%d", len(p.path))
	p.root.latency = time.Since(p.path[0].start)
	p.path = nil
}

// OpenStage pushes a new named stage as a child of the current stage.
func (p *Profiler) OpenStage(name string) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.path) == 0 {
		log.Printf("profiler: open_stage(%q) called before start", name)
		return
	}
	child := newNode(name)
	cur := p.path[len(p.path)-1]
	cur.children = append(cur.children, child)
	p.path = append(p.path, child)
}

// CloseStage pops and finalizes the latency of the current stage.
func (p *Profiler) CloseStage() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.path) == 0 {
		log.Printf("profiler: close_stage called with no open stage")
		return
	}
	cur := p.path[len(p.path)-1]
	cur.close()
	p.path = p.path[:len(p.path)-1]
}

// Add attaches an arbitrary key/value pair to the current stage.
func (p *Profiler) Add(key string, v any) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.path) == 0 {
		return
	}
	p.path[len(p.path)-1].fields[key] = v
}

// AsJSONString serializes the profiler tree. Disabled profilers always
// yield the literal "{}".
func (p *Profiler) AsJSONString() string {
	if !p.enabled {
		return "{}"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.root == nil {
		return "{}"
	}
	b, err := json.Marshal(map[string]any{p.root.name: p.root})
	if err != nil {
		log.Printf("profiler: marshal failed: %v", err)
		return "{}"
	}
	return string(b)
}

// ScopedLatency times a single named value from construction to Close,
// recording it on profiler under key. Use as:
//
//	lat := profiler.StartLatency(p, "validate")
//	defer lat.Close()
type ScopedLatency struct {
	name  string
	start time.Time
	p     *Profiler
}

// StartLatency begins timing a scoped latency entry attached to the current
// stage under name.
func StartLatency(p *Profiler, name string) *ScopedLatency {
	return &ScopedLatency{name: name, start: time.Now(), p: p}
}

// Close records the elapsed microseconds under the scoped latency's name.
func (s *ScopedLatency) Close() {
	if s.p == nil || !s.p.enabled {
		return
	}
	s.p.Add(s.name, time.Since(s.start).Microseconds())
}
