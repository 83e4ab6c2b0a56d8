package types

import (
	"encoding/base64"
	"fmt"
	"time"
)

// GroupKey is one version of a group's symmetric key. Rotation appends a
// new version; old versions stay available so historical content remains
// decryptable.
type GroupKey struct {
	Version   int       `json:"version"`
	Key       []byte    `json:"key"`
	RotatedAt time.Time `json:"rotatedAt"`
	RotatedBy string    `json:"rotatedBy"`
}

// GroupKeysPayload is the plaintext bundle transmitted to a newly admitted
// member: the group's entire key history plus the version to use for new
// writes.
type GroupKeysPayload struct {
	GroupID           GroupID    `json:"groupId"`
	Keys              []GroupKey `json:"keys"`
	CurrentKeyVersion int        `json:"currentKeyVersion"`
}

// KeyForVersion returns the key bytes for a version, or nil if unknown.
func (p *GroupKeysPayload) KeyForVersion(version int) []byte {
	for _, k := range p.Keys {
		if k.Version == version {
			return k.Key
		}
	}
	return nil
}

// CurrentKey returns the key bytes for CurrentKeyVersion, or nil.
func (p *GroupKeysPayload) CurrentKey() []byte {
	return p.KeyForVersion(p.CurrentKeyVersion)
}

// EncryptedGroupKeys is the authenticated-cipher output for a
// GroupKeysPayload: random nonce plus tag-integrated ciphertext. These are
// the only bytes that cross the wire.
type EncryptedGroupKeys struct {
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// KeyPackage is the signed, encrypted key bundle for a joining member.
// Create-once, consume-once: decrypted on first successful verification,
// never mutated.
type KeyPackage struct {
	EncryptedKeys EncryptedGroupKeys `json:"encryptedKeys"`
	Signature     []byte             `json:"signature"`
}

// KeyPackageWire is the relay-facing shape of a KeyPackage. The relay sees
// only opaque base64 fields; the sender keys identify the admitting member
// out-of-band from the symmetric secret.
type KeyPackageWire struct {
	IV                     string `json:"iv"`
	Ciphertext             string `json:"ciphertext"`
	Signature              string `json:"signature"`
	SenderPublicKey        string `json:"senderPublicKey"`
	SenderSigningPublicKey string `json:"senderSigningPublicKey"`
}

// WireKeyPackage converts a KeyPackage and the sender's exported public
// keys into the wire shape.
func WireKeyPackage(pkg KeyPackage, senderPublicKey, senderSigningPublicKey string) KeyPackageWire {
	return KeyPackageWire{
		IV:                     base64.StdEncoding.EncodeToString(pkg.EncryptedKeys.IV),
		Ciphertext:             base64.StdEncoding.EncodeToString(pkg.EncryptedKeys.Ciphertext),
		Signature:              base64.StdEncoding.EncodeToString(pkg.Signature),
		SenderPublicKey:        senderPublicKey,
		SenderSigningPublicKey: senderSigningPublicKey,
	}
}

// KeyPackage converts the wire shape back into a KeyPackage.
func (w *KeyPackageWire) KeyPackage() (KeyPackage, error) {
	iv, err := base64.StdEncoding.DecodeString(w.IV)
	if err != nil {
		return KeyPackage{}, fmt.Errorf("decode iv: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(w.Ciphertext)
	if err != nil {
		return KeyPackage{}, fmt.Errorf("decode ciphertext: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(w.Signature)
	if err != nil {
		return KeyPackage{}, fmt.Errorf("decode signature: %w", err)
	}
	return KeyPackage{
		EncryptedKeys: EncryptedGroupKeys{IV: iv, Ciphertext: ct},
		Signature:     sig,
	}, nil
}
