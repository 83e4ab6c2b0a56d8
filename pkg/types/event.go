package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// EventType identifies the kind of a member event. The set is closed:
// folding code switches exhaustively over these constants and reports a
// diagnostic for anything else.
type EventType string

const (
	// EventMemberCreated records the creation of a member identity.
	EventMemberCreated EventType = "member_created"
	// EventMemberRenamed records a display-name change.
	EventMemberRenamed EventType = "member_renamed"
	// EventMemberRetired records a member leaving the group.
	EventMemberRetired EventType = "member_retired"
	// EventMemberUnretired records a retired member rejoining.
	EventMemberUnretired EventType = "member_unretired"
	// EventMemberReplaced records an identity being superseded by another.
	EventMemberReplaced EventType = "member_replaced"
	// EventMemberMetadataUpdated records a change to externally stored
	// member metadata. The lifecycle fold treats it as a no-op.
	EventMemberMetadataUpdated EventType = "member_metadata_updated"
)

// Known reports whether t is one of the recognized event types.
func (t EventType) Known() bool {
	switch t {
	case EventMemberCreated, EventMemberRenamed, EventMemberRetired,
		EventMemberUnretired, EventMemberReplaced, EventMemberMetadataUpdated:
		return true
	}
	return false
}

// MemberEvent is an immutable, content-identified fact in the append-only
// member log. Events arrive from replicas in arbitrary order; folding code
// re-sorts by (Timestamp, ID) itself.
type MemberEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	MemberID  string    `json:"memberId"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actorId"`

	// Name is set for member_created and member_renamed.
	Name string `json:"name,omitempty"`
	// PublicKey and IsVirtual are set for member_created.
	PublicKey PublicKey `json:"publicKey,omitempty"`
	IsVirtual bool      `json:"isVirtual,omitempty"`
	// ReplacedByID is set for member_replaced.
	ReplacedByID string `json:"replacedById,omitempty"`
}

// Serialize converts a MemberEvent to JSON bytes for storage.
func (e *MemberEvent) Serialize() ([]byte, error) {
	return json.Marshal(e)
}

// Deserialize populates a MemberEvent from JSON bytes.
func (e *MemberEvent) Deserialize(data []byte) error {
	return json.Unmarshal(data, e)
}

// Before orders events for folding: primary key Timestamp, ties broken
// lexicographically by event ID so every replica sorts identically.
func (e *MemberEvent) Before(other *MemberEvent) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.ID < other.ID
}

// ComputeEventID derives the content identity of an event: CIDv1 with raw
// codec over the SHA2-256 of the event JSON with the ID field cleared.
// Replicas that independently construct the same fact agree on its ID, and
// duplicate deliveries dedupe on it.
func ComputeEventID(ev MemberEvent) (string, error) {
	ev.ID = ""
	data, err := json.Marshal(&ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash event: %w", err)
	}

	return cid.NewCidV1(cid.Raw, hash).String(), nil
}
