package lifecycle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relves/groupsync/pkg/lifecycle"
	"github.com/relves/groupsync/pkg/types"
)

func activeAndRetired() []types.MemberEvent {
	return []types.MemberEvent{
		created("e1", "active", 1000, "Active"),
		created("e2", "retired", 1000, "Retired"),
		ev("e3", types.EventMemberRetired, "retired", 2000),
		created("e4", "old", 1000, "Old"),
		created("e5", "new", 1000, "New"),
		replaced("e6", "old", 2000, "new"),
	}
}

func TestCanRename(t *testing.T) {
	engine := lifecycle.NewEngine()
	events := activeAndRetired()

	assert.True(t, engine.CanRename("active", events).Valid)
	// Renames stay legal on retired and replaced members.
	assert.True(t, engine.CanRename("retired", events).Valid)
	assert.True(t, engine.CanRename("old", events).Valid)

	v := engine.CanRename("ghost", events)
	assert.False(t, v.Valid)
	assert.Equal(t, "Member does not exist", v.Reason)
}

func TestCanRetire(t *testing.T) {
	engine := lifecycle.NewEngine()
	events := activeAndRetired()

	assert.True(t, engine.CanRetire("active", events).Valid)

	v := engine.CanRetire("retired", events)
	assert.False(t, v.Valid)
	assert.Equal(t, "Member is already retired", v.Reason)

	v = engine.CanRetire("old", events)
	assert.False(t, v.Valid)
	assert.Equal(t, "Member has been replaced", v.Reason)

	assert.False(t, engine.CanRetire("ghost", events).Valid)
}

func TestCanUnretire(t *testing.T) {
	engine := lifecycle.NewEngine()
	events := activeAndRetired()

	assert.True(t, engine.CanUnretire("retired", events).Valid)

	v := engine.CanUnretire("active", events)
	assert.False(t, v.Valid)
	assert.Equal(t, "Member is not retired", v.Reason)

	assert.False(t, engine.CanUnretire("old", events).Valid)
	assert.False(t, engine.CanUnretire("ghost", events).Valid)
}

func TestCanReplace(t *testing.T) {
	engine := lifecycle.NewEngine()
	events := activeAndRetired()

	assert.True(t, engine.CanReplace("active", "new", events).Valid)

	v := engine.CanReplace("active", "active", events)
	assert.False(t, v.Valid)
	assert.Equal(t, "Cannot replace member with themselves", v.Reason)

	v = engine.CanReplace("old", "active", events)
	assert.False(t, v.Valid)
	assert.Equal(t, "Member is already replaced", v.Reason)

	v = engine.CanReplace("retired", "active", events)
	assert.False(t, v.Valid)
	assert.Equal(t, "Member is retired", v.Reason)

	v = engine.CanReplace("active", "ghost", events)
	assert.False(t, v.Valid)
	assert.Equal(t, "Replacement member does not exist", v.Reason)
}
