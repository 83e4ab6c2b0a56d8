package group

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relves/groupsync/internal/storage/sqlite"
	"github.com/relves/groupsync/pkg/invite"
	"github.com/relves/groupsync/pkg/keycrypto"
	"github.com/relves/groupsync/pkg/keyexchange"
	"github.com/relves/groupsync/pkg/types"
)

// GroupKeys returns the group's full key history.
func (s *Service) GroupKeys(ctx context.Context, groupID types.GroupID) (types.GroupKeysPayload, error) {
	store, err := s.lookupStore(groupID)
	if err != nil {
		return types.GroupKeysPayload{}, err
	}
	payload, err := store.GetGroupKeys(ctx, groupID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return types.GroupKeysPayload{}, ErrGroupNotFound
	}
	return payload, err
}

// RotateGroupKey appends a fresh key version and marks it current. Old
// versions are kept so historical content stays decryptable.
func (s *Service) RotateGroupKey(ctx context.Context, groupID types.GroupID) (types.GroupKey, error) {
	payload, err := s.GroupKeys(ctx, groupID)
	if err != nil {
		return types.GroupKey{}, err
	}

	raw, err := keycrypto.GenerateSymmetricKey()
	if err != nil {
		return types.GroupKey{}, err
	}

	key := types.GroupKey{
		Version:   payload.CurrentKeyVersion + 1,
		Key:       raw,
		RotatedAt: time.Now().UTC(),
		RotatedBy: s.identity.MemberID(),
	}

	store, err := s.lookupStore(groupID)
	if err != nil {
		return types.GroupKey{}, err
	}
	if err := store.AppendGroupKey(ctx, groupID, key); err != nil {
		return types.GroupKey{}, fmt.Errorf("store rotated key: %w", err)
	}

	s.logger.Info("group key rotated", "groupID", string(groupID), "version", key.Version)
	return key, nil
}

// CreateInvite renders a join link carrying the current group key. The
// key rides in the URL fragment only, which browsers never send to a
// server.
func (s *Service) CreateInvite(ctx context.Context, groupID types.GroupID, baseURL string) (string, error) {
	store, err := s.lookupStore(groupID)
	if err != nil {
		return "", err
	}
	record, err := store.GetGroupRecord(ctx, groupID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return "", ErrGroupNotFound
	}
	if err != nil {
		return "", err
	}

	payload, err := s.GroupKeys(ctx, groupID)
	if err != nil {
		return "", err
	}
	current := payload.CurrentKey()
	if current == nil {
		return "", fmt.Errorf("group %s has no current key", groupID)
	}

	return invite.Encode(baseURL, invite.Link{
		GroupID:   groupID,
		GroupKey:  current,
		GroupName: record.Name,
	})
}

// AdmitMember packages the group's entire key history for a joining
// member: encrypted to their agreement key, signed with this replica's
// signing key. The returned wire shape is safe to hand to the relay.
func (s *Service) AdmitMember(ctx context.Context, groupID types.GroupID, recipientPublicKey string) (types.KeyPackageWire, error) {
	recipientPub, err := keycrypto.ImportAgreementPublicKey(recipientPublicKey)
	if err != nil {
		return types.KeyPackageWire{}, fmt.Errorf("recipient key: %w", err)
	}

	payload, err := s.GroupKeys(ctx, groupID)
	if err != nil {
		return types.KeyPackageWire{}, err
	}

	pkg, err := keyexchange.CreateKeyPackage(payload, recipientPub, s.identity.Agreement.Private, s.identity.Signing.Private)
	if err != nil {
		return types.KeyPackageWire{}, fmt.Errorf("create key package: %w", err)
	}

	signingPub, err := keycrypto.ExportSigningPublicKey(s.identity.Signing.Public)
	if err != nil {
		return types.KeyPackageWire{}, err
	}

	s.logger.Info("key package issued", "groupID", string(groupID))
	return types.WireKeyPackage(pkg,
		keycrypto.ExportAgreementPublicKey(s.identity.Agreement.Public),
		signingPub), nil
}

// AcceptKeyPackage verifies, decrypts, and installs a received key
// package. Verification failure blocks the join entirely; a member is
// never admitted without usable keys.
func (s *Service) AcceptKeyPackage(ctx context.Context, groupName string, wire types.KeyPackageWire) (types.GroupKeysPayload, error) {
	pkg, err := wire.KeyPackage()
	if err != nil {
		return types.GroupKeysPayload{}, fmt.Errorf("malformed key package: %w", err)
	}
	senderPub, err := keycrypto.ImportAgreementPublicKey(wire.SenderPublicKey)
	if err != nil {
		return types.GroupKeysPayload{}, fmt.Errorf("sender key: %w", err)
	}
	senderSigningPub, err := keycrypto.ImportSigningPublicKey(wire.SenderSigningPublicKey)
	if err != nil {
		return types.GroupKeysPayload{}, fmt.Errorf("sender signing key: %w", err)
	}

	payload, err := keyexchange.VerifyAndDecryptKeyPackage(pkg, senderPub, senderSigningPub, s.identity.Agreement.Private)
	if err != nil {
		return types.GroupKeysPayload{}, err
	}

	// The group ID arrived inside the package; even a verified sender
	// does not get to name a filesystem path.
	store, err := s.stores.GetStore(payload.GroupID)
	if errors.Is(err, sqlite.ErrInvalidGroupID) {
		return types.GroupKeysPayload{}, ErrInvalidGroupID
	}
	if err != nil {
		return types.GroupKeysPayload{}, err
	}
	if err := store.CreateGroupRecord(ctx, payload.GroupID, groupName); err != nil {
		return types.GroupKeysPayload{}, fmt.Errorf("create group record: %w", err)
	}
	if err := store.ReplaceGroupKeys(ctx, payload); err != nil {
		return types.GroupKeysPayload{}, fmt.Errorf("install key history: %w", err)
	}

	s.logger.Info("key package accepted",
		"groupID", string(payload.GroupID),
		"keyVersions", len(payload.Keys),
		"currentKeyVersion", payload.CurrentKeyVersion)
	return payload, nil
}
