package types

import (
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// GroupID is a unique identifier for an expense group.
type GroupID string

// PublicKey holds raw exported key bytes (agreement or signing).
type PublicKey []byte

// Member is the stored portion of a member identity. Status flags
// (retired, replaced) are derived by folding events, not stored here.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PublicKey PublicKey `json:"publicKey,omitempty"`
	IsVirtual bool      `json:"isVirtual,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

// MemberState is the full derived state of a member: the stored fields
// plus the status flags computed from the event fold.
type MemberState struct {
	Member

	IsRetired bool      `json:"isRetired"`
	RetiredAt time.Time `json:"retiredAt,omitzero"`

	IsReplaced   bool      `json:"isReplaced"`
	ReplacedByID string    `json:"replacedById,omitempty"`
	ReplacedAt   time.Time `json:"replacedAt,omitzero"`
}

// IsActive reports whether the member is neither retired nor replaced.
func (s MemberState) IsActive() bool {
	return !s.IsRetired && !s.IsReplaced
}

// MemberIDFromPublicKey derives a stable member ID from an exported
// agreement public key. Virtual members get locally generated IDs instead.
func MemberIDFromPublicKey(pub PublicKey) string {
	sum := sha256.Sum256(pub)
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
