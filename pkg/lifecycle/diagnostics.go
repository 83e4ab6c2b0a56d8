package lifecycle

import (
	"log/slog"
	"sync"

	"github.com/relves/groupsync/pkg/types"
)

// DiagnosticCode classifies a tolerated anomaly observed while folding.
type DiagnosticCode string

const (
	// DiagMissingCreation means a member's event set has no creation event
	// first; usually a transient gap while events are still in flight.
	DiagMissingCreation DiagnosticCode = "missing_creation"
	// DiagDuplicateCreation means a second creation event was ignored.
	DiagDuplicateCreation DiagnosticCode = "duplicate_creation"
	// DiagIllegalTransition means an event was ignored because the
	// transition is not legal from the current state.
	DiagIllegalTransition DiagnosticCode = "illegal_transition"
	// DiagUnknownEventType means an unrecognized event type was ignored.
	DiagUnknownEventType DiagnosticCode = "unknown_event_type"
	// DiagChainDepthExceeded means replacement-chain resolution hit the
	// depth bound and returned a partially resolved ID. Not safe to treat
	// the result as authoritative for authorization decisions.
	DiagChainDepthExceeded DiagnosticCode = "chain_depth_exceeded"
)

// Diagnostic is one tolerated anomaly. Folding never fails on malformed
// input; it reports diagnostics and continues.
type Diagnostic struct {
	Code      DiagnosticCode
	MemberID  string
	EventID   string
	EventType types.EventType
	Detail    string
}

// DiagnosticSink receives diagnostics. Callers choose what to do with
// them: log, assert in tests, or ignore.
type DiagnosticSink interface {
	Report(d Diagnostic)
}

// NopSink discards all diagnostics.
type NopSink struct{}

// Report implements DiagnosticSink.
func (NopSink) Report(Diagnostic) {}

// SlogSink forwards diagnostics to a slog.Logger at warn level.
type SlogSink struct {
	Logger *slog.Logger
}

// Report implements DiagnosticSink.
func (s SlogSink) Report(d Diagnostic) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("lifecycle fold anomaly",
		"code", string(d.Code),
		"memberID", d.MemberID,
		"eventID", d.EventID,
		"eventType", string(d.EventType),
		"detail", d.Detail)
}

// Collector accumulates diagnostics for inspection, typically in tests.
// Safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// Report implements DiagnosticSink.
func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, d)
}

// Diagnostics returns a copy of everything reported so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	return out
}

// Reset clears collected diagnostics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = nil
}
