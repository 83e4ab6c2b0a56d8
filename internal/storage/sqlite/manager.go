package sqlite

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/relves/groupsync/pkg/types"
)

// StoreManager manages per-group GroupStore instances with caching.
type StoreManager struct {
	basePath string
	stores   map[types.GroupID]*GroupStore
	mu       sync.RWMutex
}

// NewStoreManager creates a new StoreManager.
func NewStoreManager(basePath string) *StoreManager {
	return &StoreManager{
		basePath: basePath,
		stores:   make(map[types.GroupID]*GroupStore),
	}
}

// GetStore returns the GroupStore for the given group, opening it on
// first use. Stores are cached and reused.
func (m *StoreManager) GetStore(groupID types.GroupID) (*GroupStore, error) {
	m.mu.RLock()
	if store, ok := m.stores[groupID]; ok {
		m.mu.RUnlock()
		return store, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if store, ok := m.stores[groupID]; ok {
		return store, nil
	}

	store, err := OpenGroupStore(m.basePath, groupID)
	if err != nil {
		return nil, err
	}

	m.stores[groupID] = store
	return store, nil
}

// LookupStore returns the GroupStore for a group that already has a
// database on disk, or ErrNotFound. Unlike GetStore it never creates
// anything: read paths must not mint databases for unknown IDs.
func (m *StoreManager) LookupStore(groupID types.GroupID) (*GroupStore, error) {
	m.mu.RLock()
	if store, ok := m.stores[groupID]; ok {
		m.mu.RUnlock()
		return store, nil
	}
	m.mu.RUnlock()

	if err := validateGroupID(groupID); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(m.basePath, "groups", string(groupID), "group.db")
	if _, err := os.Stat(dbPath); err != nil {
		return nil, ErrNotFound
	}
	return m.GetStore(groupID)
}

// CloseAll closes all cached stores.
func (m *StoreManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, store := range m.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.stores = make(map[types.GroupID]*GroupStore)
	return errors.Join(errs...)
}

// BasePath returns the base path for group storage.
func (m *StoreManager) BasePath() string {
	return m.basePath
}
