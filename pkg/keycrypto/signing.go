package keycrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// SigningKeyPair is an ECDSA P-256 keypair used for package signatures.
// Distinct from the agreement keypair: the two are never interchangeable.
type SigningKeyPair struct {
	Private *ecdsa.PrivateKey
	Public  *ecdsa.PublicKey
}

// GenerateSigningKeyPair creates a fresh ECDSA P-256 keypair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &SigningKeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// Sign produces an ASN.1 ECDSA signature over the SHA-256 digest of data.
// Signatures are randomized: two signatures over identical data differ,
// and both verify.
func Sign(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// Verify checks an ASN.1 ECDSA signature over the SHA-256 digest of data.
// Returns false, never an error, on any failure including malformed input.
func Verify(pub *ecdsa.PublicKey, data, signature []byte) bool {
	if pub == nil {
		return false
	}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], signature)
}

// ExportSigningPublicKey encodes a verification key as base64 over its
// PKIX DER form.
func ExportSigningPublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal signing public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportSigningPublicKey decodes a key exported with ExportSigningPublicKey.
func ImportSigningPublicKey(encoded string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ECDSA key", ErrMalformedKey)
	}
	return pub, nil
}

// ExportSigningPrivateKey encodes a signing key as base64 over its SEC 1
// DER form.
func ExportSigningPrivateKey(priv *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("marshal signing private key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportSigningPrivateKey decodes a key exported with
// ExportSigningPrivateKey.
func ImportSigningPrivateKey(encoded string) (*ecdsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	priv, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return priv, nil
}
