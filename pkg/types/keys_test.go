package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relves/groupsync/pkg/types"
)

func TestGroupKeysPayloadLookups(t *testing.T) {
	payload := types.GroupKeysPayload{
		GroupID: "g1",
		Keys: []types.GroupKey{
			{Version: 1, Key: []byte("key-one"), RotatedAt: time.UnixMilli(1000)},
			{Version: 2, Key: []byte("key-two"), RotatedAt: time.UnixMilli(2000)},
		},
		CurrentKeyVersion: 2,
	}

	assert.Equal(t, []byte("key-one"), payload.KeyForVersion(1))
	assert.Equal(t, []byte("key-two"), payload.KeyForVersion(2))
	assert.Nil(t, payload.KeyForVersion(3))
	assert.Equal(t, []byte("key-two"), payload.CurrentKey())
}

func TestKeyPackageWireRoundTrip(t *testing.T) {
	pkg := types.KeyPackage{
		EncryptedKeys: types.EncryptedGroupKeys{
			IV:         []byte{1, 2, 3},
			Ciphertext: []byte{4, 5, 6, 7},
		},
		Signature: []byte{8, 9},
	}

	wire := types.WireKeyPackage(pkg, "sender-pub", "sender-signing-pub")
	assert.Equal(t, "sender-pub", wire.SenderPublicKey)
	assert.Equal(t, "sender-signing-pub", wire.SenderSigningPublicKey)

	got, err := wire.KeyPackage()
	require.NoError(t, err)
	assert.Equal(t, pkg, got)
}

func TestKeyPackageWireMalformed(t *testing.T) {
	wire := types.KeyPackageWire{IV: "!!!", Ciphertext: "AA==", Signature: "AA=="}
	_, err := wire.KeyPackage()
	assert.Error(t, err)
}

func TestMemberIDFromPublicKey(t *testing.T) {
	id1 := types.MemberIDFromPublicKey([]byte("public-key-bytes"))
	id2 := types.MemberIDFromPublicKey([]byte("public-key-bytes"))
	other := types.MemberIDFromPublicKey([]byte("different-bytes"))

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, other)
	assert.NotContains(t, id1, "/")
	assert.NotContains(t, id1, "+")
}
