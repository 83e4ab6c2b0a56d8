package lifecycle

import (
	"fmt"

	"github.com/relves/groupsync/pkg/types"
)

// DefaultMaxChainDepth bounds replacement-chain walks. Valid data never
// approaches it; it guards against cyclic or pathological chains.
const DefaultMaxChainDepth = 10

// ResolveCanonicalID walks the replacement chain forward to the newest
// identity. Returns memberID unchanged when the member is unknown or not
// replaced. When the depth bound is exhausted the partially resolved ID is
// returned and a DiagChainDepthExceeded diagnostic is reported; that
// result is fine for display but must not back authorization decisions.
func (e *Engine) ResolveCanonicalID(memberID string, events []types.MemberEvent) string {
	return e.walkChain(memberID, events, DefaultMaxChainDepth, e.nextForward)
}

// ResolveRootID walks the replacement chain backward to the oldest
// identity, the inverse of canonical resolution. Same depth bound.
func (e *Engine) ResolveRootID(memberID string, events []types.MemberEvent) string {
	return e.walkChain(memberID, events, DefaultMaxChainDepth, e.nextBackward)
}

// walkChain iterates one step function up to maxDepth times. Iterative on
// purpose: a malicious chain must not be able to grow the stack.
func (e *Engine) walkChain(memberID string, events []types.MemberEvent, maxDepth int, next func(string, []types.MemberEvent) (string, bool)) string {
	current := memberID
	for depth := 0; ; depth++ {
		if depth >= maxDepth {
			e.sink.Report(Diagnostic{
				Code:     DiagChainDepthExceeded,
				MemberID: memberID,
				Detail:   fmt.Sprintf("stopped at %q after %d steps", current, depth),
			})
			return current
		}
		step, ok := next(current, events)
		if !ok {
			return current
		}
		current = step
	}
}

func (e *Engine) nextForward(memberID string, events []types.MemberEvent) (string, bool) {
	state := e.ComputeState(memberID, events)
	if state == nil || !state.IsReplaced || state.ReplacedByID == "" {
		return "", false
	}
	return state.ReplacedByID, true
}

// nextBackward finds the member replaced by memberID. Several members can
// legally be replaced by the same one (two placeholders claimed by one
// real identity), so among the honored in-edges the event sorting least
// by (timestamp, event ID) wins, the same tiebreak the fold uses. Input
// slice order must never influence the result.
func (e *Engine) nextBackward(memberID string, events []types.MemberEvent) (string, bool) {
	var best *types.MemberEvent
	for i := range events {
		ev := &events[i]
		if ev.Type != types.EventMemberReplaced || ev.ReplacedByID != memberID {
			continue
		}
		// The edge only counts if the fold honored it.
		state := e.ComputeState(ev.MemberID, events)
		if state == nil || !state.IsReplaced || state.ReplacedByID != memberID {
			continue
		}
		if best == nil || ev.Before(best) {
			best = ev
		}
	}
	if best == nil {
		return "", false
	}
	return best.MemberID, true
}

// CanonicalIDMap resolves every known member to its canonical identity,
// for O(1) amortized lookup by consumers.
func (e *Engine) CanonicalIDMap(events []types.MemberEvent) map[string]string {
	out := make(map[string]string)
	for id := range e.ComputeAll(events) {
		out[id] = e.ResolveCanonicalID(id, events)
	}
	return out
}

// AliasesFor returns every member ID whose canonical identity is
// canonicalID, the inverse of CanonicalIDMap. The canonical ID itself is
// not included.
func (e *Engine) AliasesFor(canonicalID string, events []types.MemberEvent) []string {
	var aliases []string
	for id, canonical := range e.CanonicalIDMap(events) {
		if canonical == canonicalID && id != canonicalID {
			aliases = append(aliases, id)
		}
	}
	return aliases
}
