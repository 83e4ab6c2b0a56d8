package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/relves/groupsync/pkg/group"
	"github.com/relves/groupsync/pkg/keyexchange"
	"github.com/relves/groupsync/pkg/types"
)

// Handler implements the replica-local HTTP endpoints.
type Handler struct {
	service *group.Service
	logger  *slog.Logger
}

// HandleCreateGroup handles POST /groups.
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	groupID, err := h.service.CreateGroup(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "create group", err)
		return
	}
	h.respond(w, http.StatusCreated, map[string]string{"groupId": string(groupID)})
}

// HandleListMembers handles GET /groups/{groupID}/members. The status
// query parameter filters to active, retired, or replaced members.
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	groupID := types.GroupID(r.PathValue("groupID"))

	states, err := h.service.MemberStates(r.Context(), groupID)
	if err != nil {
		h.fail(w, "list members", err)
		return
	}

	status := r.URL.Query().Get("status")
	out := make(map[string]types.MemberState)
	for id, state := range states {
		switch status {
		case "", "all":
			out[id] = state
		case "active":
			if state.IsActive() {
				out[id] = state
			}
		case "retired":
			if state.IsRetired {
				out[id] = state
			}
		case "replaced":
			if state.IsReplaced {
				out[id] = state
			}
		default:
			http.Error(w, "unknown status filter", http.StatusBadRequest)
			return
		}
	}
	h.respond(w, http.StatusOK, out)
}

// HandleAppendEvents handles POST /groups/{groupID}/events: a batch of
// events from the replication transport, in any order, duplicates
// tolerated.
func (h *Handler) HandleAppendEvents(w http.ResponseWriter, r *http.Request) {
	groupID := types.GroupID(r.PathValue("groupID"))

	var events []types.MemberEvent
	if !h.decode(w, r, &events) {
		return
	}

	inserted, err := h.service.AppendEvents(r.Context(), groupID, events)
	if err != nil {
		h.fail(w, "append events", err)
		return
	}
	h.respond(w, http.StatusOK, map[string]int{"inserted": inserted})
}

// HandleCreateMember handles POST /groups/{groupID}/members.
func (h *Handler) HandleCreateMember(w http.ResponseWriter, r *http.Request) {
	groupID := types.GroupID(r.PathValue("groupID"))

	var req struct {
		Name      string `json:"name"`
		PublicKey []byte `json:"publicKey,omitempty"`
		IsVirtual bool   `json:"isVirtual,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ev, err := h.service.CreateMember(r.Context(), groupID, group.CreateMemberParams{
		Name:      req.Name,
		PublicKey: req.PublicKey,
		IsVirtual: req.IsVirtual,
	})
	if err != nil {
		h.failCommand(w, "create member", err)
		return
	}
	h.respond(w, http.StatusCreated, ev)
}

// HandleRenameMember handles POST /groups/{groupID}/members/{memberID}/rename.
func (h *Handler) HandleRenameMember(w http.ResponseWriter, r *http.Request) {
	groupID := types.GroupID(r.PathValue("groupID"))
	memberID := r.PathValue("memberID")

	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ev, err := h.service.RenameMember(r.Context(), groupID, memberID, req.Name)
	if err != nil {
		h.failCommand(w, "rename member", err)
		return
	}
	h.respond(w, http.StatusOK, ev)
}

// HandleRetireMember handles POST /groups/{groupID}/members/{memberID}/retire.
func (h *Handler) HandleRetireMember(w http.ResponseWriter, r *http.Request) {
	ev, err := h.service.RetireMember(r.Context(),
		types.GroupID(r.PathValue("groupID")), r.PathValue("memberID"))
	if err != nil {
		h.failCommand(w, "retire member", err)
		return
	}
	h.respond(w, http.StatusOK, ev)
}

// HandleUnretireMember handles POST /groups/{groupID}/members/{memberID}/unretire.
func (h *Handler) HandleUnretireMember(w http.ResponseWriter, r *http.Request) {
	ev, err := h.service.UnretireMember(r.Context(),
		types.GroupID(r.PathValue("groupID")), r.PathValue("memberID"))
	if err != nil {
		h.failCommand(w, "unretire member", err)
		return
	}
	h.respond(w, http.StatusOK, ev)
}

// HandleReplaceMember handles POST /groups/{groupID}/members/{memberID}/replace.
func (h *Handler) HandleReplaceMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReplacedByID string `json:"replacedById"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ev, err := h.service.ReplaceMember(r.Context(),
		types.GroupID(r.PathValue("groupID")), r.PathValue("memberID"), req.ReplacedByID)
	if err != nil {
		h.failCommand(w, "replace member", err)
		return
	}
	h.respond(w, http.StatusOK, ev)
}

// HandleResolveCanonical handles
// GET /groups/{groupID}/members/{memberID}/canonical.
func (h *Handler) HandleResolveCanonical(w http.ResponseWriter, r *http.Request) {
	groupID := types.GroupID(r.PathValue("groupID"))
	memberID := r.PathValue("memberID")

	canonical, err := h.service.ResolveCanonicalMemberID(r.Context(), groupID, memberID)
	if err != nil {
		h.fail(w, "resolve canonical", err)
		return
	}
	root, err := h.service.ResolveRootMemberID(r.Context(), groupID, memberID)
	if err != nil {
		h.fail(w, "resolve root", err)
		return
	}
	name, err := h.service.DisplayName(r.Context(), groupID, memberID)
	if err != nil {
		h.fail(w, "display name", err)
		return
	}

	h.respond(w, http.StatusOK, map[string]string{
		"memberId":    memberID,
		"canonicalId": canonical,
		"rootId":      root,
		"displayName": name,
	})
}

// HandleRotateKey handles POST /groups/{groupID}/keys/rotate.
func (h *Handler) HandleRotateKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.RotateGroupKey(r.Context(), types.GroupID(r.PathValue("groupID")))
	if err != nil {
		h.fail(w, "rotate key", err)
		return
	}
	// Never echo key bytes over the local API.
	h.respond(w, http.StatusOK, map[string]int{"version": key.Version})
}

// HandleCreateInvite handles POST /groups/{groupID}/invite.
func (h *Handler) HandleCreateInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseURL string `json:"baseUrl"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	link, err := h.service.CreateInvite(r.Context(), types.GroupID(r.PathValue("groupID")), req.BaseURL)
	if err != nil {
		h.fail(w, "create invite", err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"link": link})
}

// HandleAdmitMember handles POST /groups/{groupID}/admit: issues a signed
// key package for the joiner's agreement public key.
func (h *Handler) HandleAdmitMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientPublicKey string `json:"recipientPublicKey"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	wire, err := h.service.AdmitMember(r.Context(), types.GroupID(r.PathValue("groupID")), req.RecipientPublicKey)
	if err != nil {
		h.fail(w, "admit member", err)
		return
	}
	h.respond(w, http.StatusOK, wire)
}

// HandleAcceptKeyPackage handles POST /join: verifies and installs a key
// package received out-of-band. A package that fails verification or
// decryption blocks the join; there is no keyless admission.
func (h *Handler) HandleAcceptKeyPackage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupName string               `json:"groupName,omitempty"`
		Package   types.KeyPackageWire `json:"package"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	payload, err := h.service.AcceptKeyPackage(r.Context(), req.GroupName, req.Package)
	if err != nil {
		if errors.Is(err, keyexchange.ErrInvalidSignature) || errors.Is(err, keyexchange.ErrDecryptionFailed) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		h.fail(w, "accept key package", err)
		return
	}

	h.respond(w, http.StatusOK, map[string]any{
		"groupId":           payload.GroupID,
		"keyVersions":       len(payload.Keys),
		"currentKeyVersion": payload.CurrentKeyVersion,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, group.ErrGroupNotFound) {
		http.Error(w, "group not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, group.ErrInvalidGroupID) {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}
	h.logger.Error("request failed", "op", op, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// failCommand maps rejected transitions to 409 with the human-readable
// reason; everything else falls through to fail.
func (h *Handler) failCommand(w http.ResponseWriter, op string, err error) {
	var te *group.TransitionError
	if errors.As(err, &te) {
		http.Error(w, te.Reason, http.StatusConflict)
		return
	}
	h.fail(w, op, err)
}
