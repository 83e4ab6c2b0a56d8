// Package lifecycle folds an unordered multiset of member events into
// per-member state. The fold is a pure, deterministic function of the
// event set: events are sorted by timestamp with a lexicographic event-ID
// tiebreaker, then applied under the rule "apply only if the transition is
// currently legal, otherwise ignore". Any two replicas holding the same
// events converge to the same state regardless of delivery order.
package lifecycle

import (
	"slices"
	"time"

	"github.com/relves/groupsync/pkg/types"
)

// Engine computes member state from events. Construct with NewEngine and
// inject wherever state is queried; it holds no event data itself.
type Engine struct {
	sink DiagnosticSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets the diagnostic sink. Defaults to NopSink.
func WithSink(sink DiagnosticSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{sink: NopSink{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeState folds the events bearing memberID into that member's
// current state. Returns nil when the member has no creation event; that
// is a data-integrity signal, not an error. A member with no events at
// all is simply unknown and returns nil silently; a member whose events
// exist but whose earliest is not a creation is reported through the
// sink as DiagMissingCreation, since the creation may still be in
// flight from another replica.
func (e *Engine) ComputeState(memberID string, events []types.MemberEvent) *types.MemberState {
	own := sortedEventsFor(memberID, events)
	if len(own) == 0 {
		return nil
	}

	created := own[0]
	if created.Type != types.EventMemberCreated {
		e.sink.Report(Diagnostic{
			Code:      DiagMissingCreation,
			MemberID:  memberID,
			EventID:   created.ID,
			EventType: created.Type,
			Detail:    "earliest event is not a creation event",
		})
		return nil
	}

	state := &types.MemberState{
		Member: types.Member{
			ID:        memberID,
			Name:      created.Name,
			PublicKey: created.PublicKey,
			IsVirtual: created.IsVirtual,
			CreatedAt: created.Timestamp,
			CreatedBy: created.ActorID,
		},
	}

	for _, ev := range own[1:] {
		e.apply(state, ev)
	}
	return state
}

// apply folds one event into state, ignoring transitions that are not
// legal from the current state. The ignore rule is what makes the fold
// order-insensitive: conflicting concurrent transitions resolve the same
// way on every replica.
func (e *Engine) apply(state *types.MemberState, ev types.MemberEvent) {
	switch ev.Type {
	case types.EventMemberCreated:
		// First creation wins.
		e.sink.Report(Diagnostic{
			Code:      DiagDuplicateCreation,
			MemberID:  ev.MemberID,
			EventID:   ev.ID,
			EventType: ev.Type,
		})

	case types.EventMemberRenamed:
		// Rename commutes with every other transition, including on
		// retired or replaced members.
		state.Name = ev.Name

	case types.EventMemberRetired:
		if state.IsRetired || state.IsReplaced {
			e.reportIllegal(ev, "member is already retired or replaced")
			return
		}
		state.IsRetired = true
		state.RetiredAt = ev.Timestamp

	case types.EventMemberUnretired:
		if !state.IsRetired || state.IsReplaced {
			e.reportIllegal(ev, "member is not retired, or is replaced")
			return
		}
		state.IsRetired = false
		state.RetiredAt = time.Time{}

	case types.EventMemberReplaced:
		if state.IsRetired || state.IsReplaced {
			e.reportIllegal(ev, "member is already retired or replaced")
			return
		}
		state.IsReplaced = true
		state.ReplacedByID = ev.ReplacedByID
		state.ReplacedAt = ev.Timestamp

	case types.EventMemberMetadataUpdated:
		// Metadata lives in external encrypted storage; nothing to fold.

	default:
		e.sink.Report(Diagnostic{
			Code:      DiagUnknownEventType,
			MemberID:  ev.MemberID,
			EventID:   ev.ID,
			EventType: ev.Type,
		})
	}
}

func (e *Engine) reportIllegal(ev types.MemberEvent, detail string) {
	e.sink.Report(Diagnostic{
		Code:      DiagIllegalTransition,
		MemberID:  ev.MemberID,
		EventID:   ev.ID,
		EventType: ev.Type,
		Detail:    detail,
	})
}

// ComputeAll computes state for every member that has a creation event.
func (e *Engine) ComputeAll(events []types.MemberEvent) map[string]types.MemberState {
	states := make(map[string]types.MemberState)
	for _, ev := range events {
		if ev.Type != types.EventMemberCreated {
			continue
		}
		if _, done := states[ev.MemberID]; done {
			continue
		}
		if state := e.ComputeState(ev.MemberID, events); state != nil {
			states[ev.MemberID] = *state
		}
	}
	return states
}

// Active returns the states of members that are neither retired nor
// replaced.
func (e *Engine) Active(events []types.MemberEvent) map[string]types.MemberState {
	return e.filter(events, func(s types.MemberState) bool { return s.IsActive() })
}

// Retired returns the states of retired members.
func (e *Engine) Retired(events []types.MemberEvent) map[string]types.MemberState {
	return e.filter(events, func(s types.MemberState) bool { return s.IsRetired })
}

// Replaced returns the states of replaced members.
func (e *Engine) Replaced(events []types.MemberEvent) map[string]types.MemberState {
	return e.filter(events, func(s types.MemberState) bool { return s.IsReplaced })
}

func (e *Engine) filter(events []types.MemberEvent, keep func(types.MemberState) bool) map[string]types.MemberState {
	out := make(map[string]types.MemberState)
	for id, state := range e.ComputeAll(events) {
		if keep(state) {
			out[id] = state
		}
	}
	return out
}

// DisplayName resolves the name to show for a member: the name of the
// newest identity in its replacement chain. Returns the empty string for
// an unknown member.
func (e *Engine) DisplayName(memberID string, events []types.MemberEvent) string {
	canonical := e.ResolveCanonicalID(memberID, events)
	if state := e.ComputeState(canonical, events); state != nil {
		return state.Name
	}
	return ""
}

// sortedEventsFor filters events to one member and sorts them into fold
// order.
func sortedEventsFor(memberID string, events []types.MemberEvent) []types.MemberEvent {
	var own []types.MemberEvent
	for _, ev := range events {
		if ev.MemberID == memberID {
			own = append(own, ev)
		}
	}
	slices.SortFunc(own, func(a, b types.MemberEvent) int {
		if a.Before(&b) {
			return -1
		}
		if b.Before(&a) {
			return 1
		}
		return 0
	})
	return own
}
