package lifecycle

import "github.com/relves/groupsync/pkg/types"

// Validation is the outcome of a pre-emission transition check. Rejection
// is an expected, UI-actionable outcome, so it carries a human-readable
// reason instead of being an error.
type Validation struct {
	Valid  bool
	Reason string
}

func valid() Validation {
	return Validation{Valid: true}
}

func rejected(reason string) Validation {
	return Validation{Reason: reason}
}

// CanRename checks whether a rename event may be emitted for a member.
// Renames are legal in every state, including retired and replaced.
func (e *Engine) CanRename(memberID string, events []types.MemberEvent) Validation {
	if e.ComputeState(memberID, events) == nil {
		return rejected("Member does not exist")
	}
	return valid()
}

// CanRetire checks whether a retire event may be emitted for a member.
func (e *Engine) CanRetire(memberID string, events []types.MemberEvent) Validation {
	state := e.ComputeState(memberID, events)
	switch {
	case state == nil:
		return rejected("Member does not exist")
	case state.IsReplaced:
		return rejected("Member has been replaced")
	case state.IsRetired:
		return rejected("Member is already retired")
	}
	return valid()
}

// CanUnretire checks whether an unretire event may be emitted for a member.
func (e *Engine) CanUnretire(memberID string, events []types.MemberEvent) Validation {
	state := e.ComputeState(memberID, events)
	switch {
	case state == nil:
		return rejected("Member does not exist")
	case state.IsReplaced:
		return rejected("Member has been replaced")
	case !state.IsRetired:
		return rejected("Member is not retired")
	}
	return valid()
}

// CanReplace checks whether a replace event may be emitted binding
// memberID to replacedByID.
func (e *Engine) CanReplace(memberID, replacedByID string, events []types.MemberEvent) Validation {
	if memberID == replacedByID {
		return rejected("Cannot replace member with themselves")
	}
	state := e.ComputeState(memberID, events)
	switch {
	case state == nil:
		return rejected("Member does not exist")
	case state.IsReplaced:
		return rejected("Member is already replaced")
	case state.IsRetired:
		return rejected("Member is retired")
	}
	if e.ComputeState(replacedByID, events) == nil {
		return rejected("Replacement member does not exist")
	}
	return valid()
}
