// Package server exposes the replica-local HTTP surface the UI layer
// consumes: member state queries, event ingestion, member commands, and
// the invite/admission flow. This is not the relay between replicas; the
// replication transport stays external.
package server

import (
	"errors"
	"net/http"
)

// NewServer builds the HTTP handler for a configured group service.
func NewServer(opts ...Option) (http.Handler, error) {
	cfg := applyOptions(opts...)
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}

	h := &Handler{service: cfg.Service, logger: cfg.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /groups", h.HandleCreateGroup)
	mux.HandleFunc("GET /groups/{groupID}/members", h.HandleListMembers)
	mux.HandleFunc("POST /groups/{groupID}/events", h.HandleAppendEvents)
	mux.HandleFunc("POST /groups/{groupID}/members", h.HandleCreateMember)
	mux.HandleFunc("POST /groups/{groupID}/members/{memberID}/rename", h.HandleRenameMember)
	mux.HandleFunc("POST /groups/{groupID}/members/{memberID}/retire", h.HandleRetireMember)
	mux.HandleFunc("POST /groups/{groupID}/members/{memberID}/unretire", h.HandleUnretireMember)
	mux.HandleFunc("POST /groups/{groupID}/members/{memberID}/replace", h.HandleReplaceMember)
	mux.HandleFunc("GET /groups/{groupID}/members/{memberID}/canonical", h.HandleResolveCanonical)
	mux.HandleFunc("POST /groups/{groupID}/keys/rotate", h.HandleRotateKey)
	mux.HandleFunc("POST /groups/{groupID}/invite", h.HandleCreateInvite)
	mux.HandleFunc("POST /groups/{groupID}/admit", h.HandleAdmitMember)
	mux.HandleFunc("POST /join", h.HandleAcceptKeyPackage)
	return mux, nil
}
