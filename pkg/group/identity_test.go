package group_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relves/groupsync/pkg/group"
)

func TestNewIdentity(t *testing.T) {
	identity, err := group.NewIdentity()
	require.NoError(t, err)

	assert.NotNil(t, identity.Agreement)
	assert.NotNil(t, identity.Signing)
	assert.NotEmpty(t, identity.MemberID())

	other, err := group.NewIdentity()
	require.NoError(t, err)
	assert.NotEqual(t, identity.MemberID(), other.MemberID())
}

func TestLoadOrCreateIdentity_Persists(t *testing.T) {
	dir := t.TempDir()

	first, err := group.LoadOrCreateIdentity(dir)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "identity.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := group.LoadOrCreateIdentity(dir)
	require.NoError(t, err)
	assert.Equal(t, first.MemberID(), second.MemberID())
	assert.True(t, first.Agreement.Private.Equal(second.Agreement.Private))
	assert.True(t, first.Signing.Private.Equal(second.Signing.Private))
}

func TestLoadOrCreateIdentity_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "identity.json"), []byte("{"), 0600))

	_, err := group.LoadOrCreateIdentity(dir)
	assert.Error(t, err)
}
