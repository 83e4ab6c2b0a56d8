// Package storage defines the persistence interfaces the group service
// consumes. The replication transport between replicas is external; these
// interfaces cover only the replica's own local copy of events and keys.
package storage

import (
	"context"
	"time"

	"github.com/relves/groupsync/pkg/types"
)

// Store persists a single group's member events and key history.
type Store interface {
	// CreateGroupRecord registers a group. Idempotent.
	CreateGroupRecord(ctx context.Context, groupID types.GroupID, name string) error
	// GetGroupRecord returns the group's stored metadata.
	GetGroupRecord(ctx context.Context, groupID types.GroupID) (*GroupRecord, error)

	// AppendEvents inserts events, ignoring IDs already present, and
	// returns how many were newly inserted. The transport may redeliver,
	// so duplicates are expected.
	AppendEvents(ctx context.Context, groupID types.GroupID, events []types.MemberEvent) (int, error)
	// ListEvents returns every stored event for the group, in arrival
	// order. Callers treat the result as an unordered set.
	ListEvents(ctx context.Context, groupID types.GroupID) ([]types.MemberEvent, error)

	// AppendGroupKey stores one key version and marks it current.
	AppendGroupKey(ctx context.Context, groupID types.GroupID, key types.GroupKey) error
	// GetGroupKeys returns the full key history with the current version.
	GetGroupKeys(ctx context.Context, groupID types.GroupID) (types.GroupKeysPayload, error)
	// ReplaceGroupKeys overwrites the key history wholesale, used when a
	// joiner installs a received key package.
	ReplaceGroupKeys(ctx context.Context, payload types.GroupKeysPayload) error

	Close() error
}

// GroupRecord is a group's stored metadata.
type GroupRecord struct {
	GroupID           types.GroupID
	Name              string
	CurrentKeyVersion int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
