package group

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relves/groupsync/pkg/lifecycle"
	"github.com/relves/groupsync/pkg/types"
)

// CreateMemberParams describes a member to create. Real members carry the
// exported agreement public key their ID derives from; virtual members
// are placeholders with a locally generated ID.
type CreateMemberParams struct {
	Name      string
	PublicKey types.PublicKey
	IsVirtual bool
}

// CreateMember validates and emits a creation event, returning the stored
// event.
func (s *Service) CreateMember(ctx context.Context, groupID types.GroupID, params CreateMemberParams) (types.MemberEvent, error) {
	if params.Name == "" {
		return types.MemberEvent{}, &TransitionError{Reason: "Member name is required"}
	}

	var memberID string
	switch {
	case params.IsVirtual:
		memberID = uuid.NewString()
	case len(params.PublicKey) > 0:
		memberID = types.MemberIDFromPublicKey(params.PublicKey)
	default:
		return types.MemberEvent{}, &TransitionError{Reason: "A public key is required for non-virtual members"}
	}

	return s.emit(ctx, groupID, types.MemberEvent{
		Type:      types.EventMemberCreated,
		MemberID:  memberID,
		Name:      params.Name,
		PublicKey: params.PublicKey,
		IsVirtual: params.IsVirtual,
	})
}

// RenameMember validates and emits a rename event.
func (s *Service) RenameMember(ctx context.Context, groupID types.GroupID, memberID, name string) (types.MemberEvent, error) {
	if name == "" {
		return types.MemberEvent{}, &TransitionError{Reason: "Member name is required"}
	}
	return s.emitChecked(ctx, groupID,
		func(events []types.MemberEvent) lifecycle.Validation {
			return s.engine.CanRename(memberID, events)
		},
		types.MemberEvent{
			Type:     types.EventMemberRenamed,
			MemberID: memberID,
			Name:     name,
		})
}

// RetireMember validates and emits a retire event.
func (s *Service) RetireMember(ctx context.Context, groupID types.GroupID, memberID string) (types.MemberEvent, error) {
	return s.emitChecked(ctx, groupID,
		func(events []types.MemberEvent) lifecycle.Validation {
			return s.engine.CanRetire(memberID, events)
		},
		types.MemberEvent{
			Type:     types.EventMemberRetired,
			MemberID: memberID,
		})
}

// UnretireMember validates and emits an unretire event.
func (s *Service) UnretireMember(ctx context.Context, groupID types.GroupID, memberID string) (types.MemberEvent, error) {
	return s.emitChecked(ctx, groupID,
		func(events []types.MemberEvent) lifecycle.Validation {
			return s.engine.CanUnretire(memberID, events)
		},
		types.MemberEvent{
			Type:     types.EventMemberUnretired,
			MemberID: memberID,
		})
}

// ReplaceMember validates and emits a replace event binding memberID's
// history to replacedByID.
func (s *Service) ReplaceMember(ctx context.Context, groupID types.GroupID, memberID, replacedByID string) (types.MemberEvent, error) {
	return s.emitChecked(ctx, groupID,
		func(events []types.MemberEvent) lifecycle.Validation {
			return s.engine.CanReplace(memberID, replacedByID, events)
		},
		types.MemberEvent{
			Type:         types.EventMemberReplaced,
			MemberID:     memberID,
			ReplacedByID: replacedByID,
		})
}

// emitChecked runs a validation predicate against the current event set
// before emitting. Validation happens on emission only; the fold itself
// re-checks legality on every replica, so a racing conflicting event
// still converges.
func (s *Service) emitChecked(ctx context.Context, groupID types.GroupID, check func([]types.MemberEvent) lifecycle.Validation, ev types.MemberEvent) (types.MemberEvent, error) {
	events, err := s.Events(ctx, groupID)
	if err != nil {
		return types.MemberEvent{}, err
	}
	if v := check(events); !v.Valid {
		return types.MemberEvent{}, &TransitionError{Reason: v.Reason}
	}
	return s.emit(ctx, groupID, ev)
}

func (s *Service) emit(ctx context.Context, groupID types.GroupID, ev types.MemberEvent) (types.MemberEvent, error) {
	ev.Timestamp = time.Now().UTC()
	ev.ActorID = s.identity.MemberID()

	id, err := types.ComputeEventID(ev)
	if err != nil {
		return types.MemberEvent{}, err
	}
	ev.ID = id

	if _, err := s.AppendEvents(ctx, groupID, []types.MemberEvent{ev}); err != nil {
		return types.MemberEvent{}, fmt.Errorf("append event: %w", err)
	}

	s.logger.Debug("member event emitted",
		"groupID", string(groupID),
		"eventID", ev.ID,
		"type", string(ev.Type),
		"memberID", ev.MemberID)
	return ev, nil
}
