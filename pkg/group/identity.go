package group

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relves/groupsync/pkg/keycrypto"
	"github.com/relves/groupsync/pkg/types"
)

// Identity is a replica's local key material: one agreement keypair for
// shared-secret derivation and one signing keypair for package signatures.
// The two are separate on purpose and never reused across roles.
type Identity struct {
	Agreement *keycrypto.AgreementKeyPair
	Signing   *keycrypto.SigningKeyPair
}

// NewIdentity generates fresh key material.
func NewIdentity() (*Identity, error) {
	agreement, err := keycrypto.GenerateAgreementKeyPair()
	if err != nil {
		return nil, err
	}
	signing, err := keycrypto.GenerateSigningKeyPair()
	if err != nil {
		return nil, err
	}
	return &Identity{Agreement: agreement, Signing: signing}, nil
}

// MemberID derives the stable member ID for this identity from its
// agreement public key.
func (id *Identity) MemberID() string {
	return types.MemberIDFromPublicKey(id.Agreement.Public.Bytes())
}

// identityFile is the on-disk shape of an identity, all fields base64.
type identityFile struct {
	AgreementPrivateKey string `json:"agreementPrivateKey"`
	SigningPrivateKey   string `json:"signingPrivateKey"`
}

// LoadOrCreateIdentity reads the identity file under basePath, generating
// and persisting a fresh one when none exists.
func LoadOrCreateIdentity(basePath string) (*Identity, error) {
	path := filepath.Join(basePath, "identity.json")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return createIdentityFile(basePath, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	var file identityFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}

	agreementPriv, err := keycrypto.ImportAgreementPrivateKey(file.AgreementPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("import agreement key: %w", err)
	}
	signingPriv, err := keycrypto.ImportSigningPrivateKey(file.SigningPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}

	return &Identity{
		Agreement: &keycrypto.AgreementKeyPair{Private: agreementPriv, Public: agreementPriv.PublicKey()},
		Signing:   &keycrypto.SigningKeyPair{Private: signingPriv, Public: &signingPriv.PublicKey},
	}, nil
}

func createIdentityFile(basePath, path string) (*Identity, error) {
	identity, err := NewIdentity()
	if err != nil {
		return nil, err
	}

	signingPriv, err := keycrypto.ExportSigningPrivateKey(identity.Signing.Private)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(identityFile{
		AgreementPrivateKey: keycrypto.ExportAgreementPrivateKey(identity.Agreement.Private),
		SigningPrivateKey:   signingPriv,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal identity file: %w", err)
	}

	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write identity file: %w", err)
	}
	return identity, nil
}
