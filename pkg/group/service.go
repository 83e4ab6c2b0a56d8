// Package group composes storage, the lifecycle engine, and the key
// exchange into the service the HTTP surface and UI layers consume. The
// service is explicitly constructed and injected; there is no package
// state.
package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/relves/groupsync/internal/storage/sqlite"
	"github.com/relves/groupsync/pkg/keycrypto"
	"github.com/relves/groupsync/pkg/lifecycle"
	"github.com/relves/groupsync/pkg/types"
)

const defaultStateCacheSize = 128

// ErrGroupNotFound indicates an unknown group.
var ErrGroupNotFound = errors.New("group not found")

// ErrInvalidGroupID indicates a group ID rejected before it could reach
// storage.
var ErrInvalidGroupID = errors.New("invalid group id")

// TransitionError reports a rejected member transition. The reason is
// human-readable and safe to surface directly.
type TransitionError struct {
	Reason string
}

func (e *TransitionError) Error() string {
	return e.Reason
}

// Service is the replica-local group service.
type Service struct {
	stores   *sqlite.StoreManager
	engine   *lifecycle.Engine
	identity *Identity
	logger   *slog.Logger

	// Computed member states per group. Folding is cheap but hot: every
	// query path wants it. Invalidated on append.
	states *lru.Cache[types.GroupID, map[string]types.MemberState]
	flight singleflight.Group

	// Per-group append generation. A fold caches its result only if no
	// append landed while it ran, so an invalidation can never be
	// overwritten by a stale map.
	genMu sync.Mutex
	gens  map[types.GroupID]uint64
}

// ServiceConfig holds configuration for creating a Service.
type ServiceConfig struct {
	Stores    *sqlite.StoreManager
	Engine    *lifecycle.Engine
	Identity  *Identity
	Logger    *slog.Logger
	CacheSize int
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Stores == nil {
		return nil, errors.New("stores is required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("identity is required")
	}
	if cfg.Engine == nil {
		cfg.Engine = lifecycle.NewEngine()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultStateCacheSize
	}

	states, err := lru.New[types.GroupID, map[string]types.MemberState](size)
	if err != nil {
		return nil, fmt.Errorf("create state cache: %w", err)
	}

	return &Service{
		stores:   cfg.Stores,
		engine:   cfg.Engine,
		identity: cfg.Identity,
		logger:   cfg.Logger,
		states:   states,
		gens:     make(map[types.GroupID]uint64),
	}, nil
}

func (s *Service) generation(groupID types.GroupID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[groupID]
}

func (s *Service) bumpGeneration(groupID types.GroupID) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[groupID]++
}

// lookupStore resolves the store for an existing group. Read and append
// paths go through here so an unknown or hostile group ID can never
// create a database.
func (s *Service) lookupStore(groupID types.GroupID) (*sqlite.GroupStore, error) {
	store, err := s.stores.LookupStore(groupID)
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		return nil, ErrGroupNotFound
	case errors.Is(err, sqlite.ErrInvalidGroupID):
		return nil, ErrInvalidGroupID
	}
	return store, err
}

// Identity returns the replica's local identity.
func (s *Service) Identity() *Identity {
	return s.identity
}

// CreateGroup creates a group with a fresh version-1 key and returns its
// ID.
func (s *Service) CreateGroup(ctx context.Context, name string) (types.GroupID, error) {
	groupID := types.GroupID(uuid.NewString())

	store, err := s.stores.GetStore(groupID)
	if err != nil {
		return "", err
	}
	if err := store.CreateGroupRecord(ctx, groupID, name); err != nil {
		return "", fmt.Errorf("create group record: %w", err)
	}

	key, err := keycrypto.GenerateSymmetricKey()
	if err != nil {
		return "", err
	}
	err = store.AppendGroupKey(ctx, groupID, types.GroupKey{
		Version:   1,
		Key:       key,
		RotatedAt: time.Now().UTC(),
		RotatedBy: s.identity.MemberID(),
	})
	if err != nil {
		return "", fmt.Errorf("store initial group key: %w", err)
	}

	s.logger.Info("group created", "groupID", string(groupID), "name", name)
	return groupID, nil
}

// AppendEvents ingests a batch of events, local or remote, and returns
// how many were new. Events without an ID get their content ID computed
// here. Duplicates are ignored; affected state is recomputed lazily.
func (s *Service) AppendEvents(ctx context.Context, groupID types.GroupID, events []types.MemberEvent) (int, error) {
	store, err := s.lookupStore(groupID)
	if err != nil {
		return 0, err
	}

	for i := range events {
		if events[i].ID != "" {
			continue
		}
		id, err := types.ComputeEventID(events[i])
		if err != nil {
			return 0, err
		}
		events[i].ID = id
	}

	inserted, err := store.AppendEvents(ctx, groupID, events)
	if err != nil {
		return inserted, err
	}
	if inserted > 0 {
		// Bump before removing: a fold that already read the old event
		// set sees the generation change and skips caching.
		s.bumpGeneration(groupID)
		s.states.Remove(groupID)
	}
	return inserted, nil
}

// Events returns the group's full event set.
func (s *Service) Events(ctx context.Context, groupID types.GroupID) ([]types.MemberEvent, error) {
	store, err := s.lookupStore(groupID)
	if err != nil {
		return nil, err
	}
	return store.ListEvents(ctx, groupID)
}

// MemberStates returns the computed state of every member. Concurrent
// callers share one fold per group via singleflight; results are cached
// until the next append.
func (s *Service) MemberStates(ctx context.Context, groupID types.GroupID) (map[string]types.MemberState, error) {
	if cached, ok := s.states.Get(groupID); ok {
		return cached, nil
	}

	v, err, _ := s.flight.Do(string(groupID), func() (interface{}, error) {
		gen := s.generation(groupID)
		events, err := s.Events(ctx, groupID)
		if err != nil {
			return nil, err
		}
		computed := s.engine.ComputeAll(events)
		if s.generation(groupID) == gen {
			s.states.Add(groupID, computed)
		}
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]types.MemberState), nil
}

// ActiveMembers returns members that are neither retired nor replaced.
func (s *Service) ActiveMembers(ctx context.Context, groupID types.GroupID) (map[string]types.MemberState, error) {
	states, err := s.MemberStates(ctx, groupID)
	if err != nil {
		return nil, err
	}
	active := make(map[string]types.MemberState)
	for id, state := range states {
		if state.IsActive() {
			active[id] = state
		}
	}
	return active, nil
}

// DisplayName resolves the display name for a member through its
// replacement chain.
func (s *Service) DisplayName(ctx context.Context, groupID types.GroupID, memberID string) (string, error) {
	events, err := s.Events(ctx, groupID)
	if err != nil {
		return "", err
	}
	return s.engine.DisplayName(memberID, events), nil
}

// ResolveCanonicalMemberID resolves the newest identity in a member's
// replacement chain.
func (s *Service) ResolveCanonicalMemberID(ctx context.Context, groupID types.GroupID, memberID string) (string, error) {
	events, err := s.Events(ctx, groupID)
	if err != nil {
		return "", err
	}
	return s.engine.ResolveCanonicalID(memberID, events), nil
}

// ResolveRootMemberID resolves the oldest identity in a member's
// replacement chain.
func (s *Service) ResolveRootMemberID(ctx context.Context, groupID types.GroupID, memberID string) (string, error) {
	events, err := s.Events(ctx, groupID)
	if err != nil {
		return "", err
	}
	return s.engine.ResolveRootID(memberID, events), nil
}

// AliasesFor returns the prior identities resolving to canonicalID.
func (s *Service) AliasesFor(ctx context.Context, groupID types.GroupID, canonicalID string) ([]string, error) {
	events, err := s.Events(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.engine.AliasesFor(canonicalID, events), nil
}
