package keycrypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relves/groupsync/pkg/keycrypto"
)

func TestAgreementKeyExportImport(t *testing.T) {
	pair, err := keycrypto.GenerateAgreementKeyPair()
	require.NoError(t, err)

	pubEncoded := keycrypto.ExportAgreementPublicKey(pair.Public)
	pub, err := keycrypto.ImportAgreementPublicKey(pubEncoded)
	require.NoError(t, err)
	assert.True(t, pair.Public.Equal(pub))

	privEncoded := keycrypto.ExportAgreementPrivateKey(pair.Private)
	priv, err := keycrypto.ImportAgreementPrivateKey(privEncoded)
	require.NoError(t, err)
	assert.True(t, pair.Private.Equal(priv))
}

func TestImportAgreementKey_Malformed(t *testing.T) {
	_, err := keycrypto.ImportAgreementPublicKey("not base64!!")
	assert.ErrorIs(t, err, keycrypto.ErrMalformedKey)

	_, err = keycrypto.ImportAgreementPublicKey("AAAA")
	assert.ErrorIs(t, err, keycrypto.ErrMalformedKey)
}

func TestSharedSecretCommutes(t *testing.T) {
	alice, err := keycrypto.GenerateAgreementKeyPair()
	require.NoError(t, err)
	bob, err := keycrypto.GenerateAgreementKeyPair()
	require.NoError(t, err)

	ab, err := keycrypto.SharedSecret(alice.Private, bob.Public)
	require.NoError(t, err)
	ba, err := keycrypto.SharedSecret(bob.Private, alice.Public)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Len(t, ab, keycrypto.SymmetricKeySize)

	eve, err := keycrypto.GenerateAgreementKeyPair()
	require.NoError(t, err)
	eb, err := keycrypto.SharedSecret(eve.Private, bob.Public)
	require.NoError(t, err)
	assert.NotEqual(t, ab, eb)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := keycrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	plaintext := []byte("who owes whom")
	iv, ciphertext, err := keycrypto.Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.Len(t, iv, keycrypto.NonceSize)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := keycrypto.Decrypt(key, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	key, err := keycrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	iv1, ct1, err := keycrypto.Encrypt(key, []byte("same input"))
	require.NoError(t, err)
	iv2, ct2, err := keycrypto.Encrypt(key, []byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
	assert.NotEqual(t, ct1, ct2)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key1, err := keycrypto.GenerateSymmetricKey()
	require.NoError(t, err)
	key2, err := keycrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	iv, ciphertext, err := keycrypto.Encrypt(key1, []byte("secret"))
	require.NoError(t, err)

	_, err = keycrypto.Decrypt(key2, iv, ciphertext)
	assert.ErrorIs(t, err, keycrypto.ErrDecryptionFailed)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	key, err := keycrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	iv, ciphertext, err := keycrypto.Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	ciphertext[0] ^= 0x01
	_, err = keycrypto.Decrypt(key, iv, ciphertext)
	assert.ErrorIs(t, err, keycrypto.ErrDecryptionFailed)
}

func TestDecrypt_BadKeySize(t *testing.T) {
	_, err := keycrypto.Decrypt([]byte("short"), make([]byte, keycrypto.NonceSize), []byte("ct"))
	assert.ErrorIs(t, err, keycrypto.ErrMalformedKey)
}

func TestStringAndJSONWrappers(t *testing.T) {
	key, err := keycrypto.GenerateSymmetricKey()
	require.NoError(t, err)

	iv, ct, err := keycrypto.EncryptString(key, "héllo")
	require.NoError(t, err)
	s, err := keycrypto.DecryptString(key, iv, ct)
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	type payload struct {
		Amount int    `json:"amount"`
		Payer  string `json:"payer"`
	}
	iv, ct, err = keycrypto.EncryptJSON(key, payload{Amount: 42, Payer: "alice"})
	require.NoError(t, err)

	var got payload
	require.NoError(t, keycrypto.DecryptJSON(key, iv, ct, &got))
	assert.Equal(t, payload{Amount: 42, Payer: "alice"}, got)
}

func TestSignVerify(t *testing.T) {
	pair, err := keycrypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	data := []byte("signed bytes")
	sig1, err := keycrypto.Sign(pair.Private, data)
	require.NoError(t, err)
	sig2, err := keycrypto.Sign(pair.Private, data)
	require.NoError(t, err)

	// ECDSA signatures are randomized; both must verify.
	assert.NotEqual(t, sig1, sig2)
	assert.True(t, keycrypto.Verify(pair.Public, data, sig1))
	assert.True(t, keycrypto.Verify(pair.Public, data, sig2))

	assert.False(t, keycrypto.Verify(pair.Public, []byte("other bytes"), sig1))
	assert.False(t, keycrypto.Verify(pair.Public, data, []byte("garbage")))
	assert.False(t, keycrypto.Verify(nil, data, sig1))

	other, err := keycrypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	assert.False(t, keycrypto.Verify(other.Public, data, sig1))
}

func TestSigningKeyExportImport(t *testing.T) {
	pair, err := keycrypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	pubEncoded, err := keycrypto.ExportSigningPublicKey(pair.Public)
	require.NoError(t, err)
	pub, err := keycrypto.ImportSigningPublicKey(pubEncoded)
	require.NoError(t, err)
	assert.True(t, pair.Public.Equal(pub))

	privEncoded, err := keycrypto.ExportSigningPrivateKey(pair.Private)
	require.NoError(t, err)
	priv, err := keycrypto.ImportSigningPrivateKey(privEncoded)
	require.NoError(t, err)
	assert.True(t, pair.Private.Equal(priv))

	sig, err := keycrypto.Sign(priv, []byte("data"))
	require.NoError(t, err)
	assert.True(t, keycrypto.Verify(pub, []byte("data"), sig))
}

func TestSigningKeysAreNotAgreementKeys(t *testing.T) {
	pair, err := keycrypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	encoded, err := keycrypto.ExportSigningPublicKey(pair.Public)
	require.NoError(t, err)

	// A PKIX-encoded signing key must not import as an agreement key.
	_, err = keycrypto.ImportAgreementPublicKey(encoded)
	assert.ErrorIs(t, err, keycrypto.ErrMalformedKey)
}
