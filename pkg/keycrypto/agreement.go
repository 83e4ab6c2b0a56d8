// Package keycrypto provides the three primitive families the key-exchange
// protocol is built on: ECDH P-256 key agreement, AES-256-GCM authenticated
// encryption, and ECDSA P-256 signing. Agreement and signing keys are
// separate keypairs and are never reused across the two purposes.
//
// All operations are stateless and safe to call concurrently.
package keycrypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrMalformedKey indicates key bytes that do not parse as a key of
	// the expected type.
	ErrMalformedKey = errors.New("malformed key")
	// ErrDecryptionFailed indicates an authentication failure on decrypt:
	// wrong key or tampered ciphertext.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// sharedSecretInfo domain-separates the HKDF expansion of the raw ECDH
// secret from any other use of the same keypairs.
const sharedSecretInfo = "groupsync/key-agreement/v1"

// AgreementKeyPair is an ECDH P-256 keypair used for shared-secret
// derivation.
type AgreementKeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

// GenerateAgreementKeyPair creates a fresh ECDH P-256 keypair.
func GenerateAgreementKeyPair() (*AgreementKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate agreement key: %w", err)
	}
	return &AgreementKeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// ExportAgreementPublicKey encodes a public key as base64 over the
// uncompressed point bytes. Round-trips losslessly with the import function.
func ExportAgreementPublicKey(pub *ecdh.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub.Bytes())
}

// ImportAgreementPublicKey decodes a public key exported with
// ExportAgreementPublicKey.
func ImportAgreementPublicKey(encoded string) (*ecdh.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return pub, nil
}

// ExportAgreementPrivateKey encodes a private key as base64 over the
// fixed-length scalar bytes.
func ExportAgreementPrivateKey(priv *ecdh.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(priv.Bytes())
}

// ImportAgreementPrivateKey decodes a private key exported with
// ExportAgreementPrivateKey.
func ImportAgreementPrivateKey(encoded string) (*ecdh.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return priv, nil
}

// SharedSecret derives a 32-byte symmetric key from an ECDH exchange:
// raw secret from the curve, then HKDF-SHA256 expansion. The exchange is
// commutative, so SharedSecret(a.Private, b.Public) equals
// SharedSecret(b.Private, a.Public).
func SharedSecret(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	raw, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	r := hkdf.New(sha256.New, raw, nil, []byte(sharedSecretInfo))
	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}
