// Package keyexchange implements the group key distribution protocol: the
// admitting member encrypts the group's entire key history for one
// recipient via ECDH-derived symmetric encryption, then signs the
// ciphertext so the recipient can authenticate before decrypting. The
// relay between them only ever sees opaque bytes.
package keyexchange

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/relves/groupsync/pkg/keycrypto"
	"github.com/relves/groupsync/pkg/types"
)

var (
	// ErrInvalidSignature indicates a key package whose signature does not
	// verify against the claimed sender. Raised before any decryption.
	ErrInvalidSignature = errors.New("invalid key package signature")
	// ErrDecryptionFailed indicates a key package that verified but did
	// not decrypt: mismatched keys or tampered ciphertext.
	ErrDecryptionFailed = keycrypto.ErrDecryptionFailed
)

// EncryptForRecipient encrypts the key history for a single recipient.
// The symmetric key is derived from ECDH between the sender's private
// agreement key and the recipient's public key; a fresh nonce is used per
// call. Only the nonce and ciphertext are ever transmitted.
func EncryptForRecipient(payload types.GroupKeysPayload, recipientPub *ecdh.PublicKey, senderPriv *ecdh.PrivateKey) (types.EncryptedGroupKeys, error) {
	secret, err := keycrypto.SharedSecret(senderPriv, recipientPub)
	if err != nil {
		return types.EncryptedGroupKeys{}, fmt.Errorf("derive shared secret: %w", err)
	}

	iv, ciphertext, err := keycrypto.EncryptJSON(secret, payload)
	if err != nil {
		return types.EncryptedGroupKeys{}, fmt.Errorf("encrypt key history: %w", err)
	}

	return types.EncryptedGroupKeys{IV: iv, Ciphertext: ciphertext}, nil
}

// DecryptFromSender re-derives the shared secret from the recipient's
// private key and the sender's public key (the exchange is commutative)
// and decrypts the key history. Fails with ErrDecryptionFailed when keys
// mismatch or the ciphertext was altered.
func DecryptFromSender(enc types.EncryptedGroupKeys, senderPub *ecdh.PublicKey, recipientPriv *ecdh.PrivateKey) (types.GroupKeysPayload, error) {
	secret, err := keycrypto.SharedSecret(recipientPriv, senderPub)
	if err != nil {
		return types.GroupKeysPayload{}, fmt.Errorf("derive shared secret: %w", err)
	}

	var payload types.GroupKeysPayload
	if err := keycrypto.DecryptJSON(secret, enc.IV, enc.Ciphertext, &payload); err != nil {
		return types.GroupKeysPayload{}, err
	}
	return payload, nil
}

// SignPackage signs the canonical serialization of the encrypted keys,
// not the plaintext, so a verifier can check authenticity without
// decrypting first.
func SignPackage(enc types.EncryptedGroupKeys, signingPriv *ecdsa.PrivateKey) ([]byte, error) {
	return keycrypto.Sign(signingPriv, signingBytes(enc))
}

// VerifyPackage checks a package signature against the sender's
// verification key. Returns false, never an error, on any failure.
func VerifyPackage(enc types.EncryptedGroupKeys, signature []byte, verificationKey *ecdsa.PublicKey) bool {
	return keycrypto.Verify(verificationKey, signingBytes(enc), signature)
}

// CreateKeyPackage composes encrypt-then-sign for a joining member.
func CreateKeyPackage(payload types.GroupKeysPayload, recipientPub *ecdh.PublicKey, senderPriv *ecdh.PrivateKey, senderSigningPriv *ecdsa.PrivateKey) (types.KeyPackage, error) {
	enc, err := EncryptForRecipient(payload, recipientPub, senderPriv)
	if err != nil {
		return types.KeyPackage{}, err
	}

	sig, err := SignPackage(enc, senderSigningPriv)
	if err != nil {
		return types.KeyPackage{}, fmt.Errorf("sign key package: %w", err)
	}

	return types.KeyPackage{EncryptedKeys: enc, Signature: sig}, nil
}

// VerifyAndDecryptKeyPackage composes verify-then-decrypt. Verification
// strictly precedes decryption: an unauthenticated package is rejected
// with ErrInvalidSignature before any decryption is attempted.
func VerifyAndDecryptKeyPackage(pkg types.KeyPackage, senderPub *ecdh.PublicKey, senderVerificationKey *ecdsa.PublicKey, recipientPriv *ecdh.PrivateKey) (types.GroupKeysPayload, error) {
	if !VerifyPackage(pkg.EncryptedKeys, pkg.Signature, senderVerificationKey) {
		return types.GroupKeysPayload{}, ErrInvalidSignature
	}
	return DecryptFromSender(pkg.EncryptedKeys, senderPub, recipientPriv)
}

// signingBytes is the canonical serialization covered by the package
// signature: big-endian length of the nonce, nonce, ciphertext.
func signingBytes(enc types.EncryptedGroupKeys) []byte {
	buf := make([]byte, 0, 4+len(enc.IV)+len(enc.Ciphertext))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(enc.IV)))
	buf = append(buf, enc.IV...)
	buf = append(buf, enc.Ciphertext...)
	return buf
}
