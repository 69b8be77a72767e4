package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smorozov/vaultcore/internal/server/services"
)

type shareItemRequest struct {
	ItemID  string `json:"item_id"`
	Payload []byte `json:"payload"`
	Meta    string `json:"meta"`
}

type issueShareRequest struct {
	Items     []shareItemRequest `json:"items"`
	Quota     int64              `json:"quota"`
	ExpiresAt *time.Time         `json:"expires_at"`
}

func (s *Server) handleIssueShare(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req issueShareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]services.ShareItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, services.ShareItemInput{
			OriginItemID: it.ItemID,
			Payload:      it.Payload,
			Meta:         it.Meta,
		})
	}

	share, err := s.shares.Issue(r.Context(), id, items, req.Quota, req.ExpiresAt)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toShareResponse(share, true, false))
}

// handleRedeemShare is public: possession of the token is the credential.
func (s *Server) handleRedeemShare(w http.ResponseWriter, r *http.Request) {
	share, err := s.shares.Redeem(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toShareResponse(share, false, true))
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	shares, err := s.shares.List(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]shareResponse, 0, len(shares))
	for _, sh := range shares {
		out = append(out, s.toShareResponse(sh, true, false))
	}
	writeJSON(w, http.StatusOK, out)
}

type editShareRequest struct {
	Quota     *int64  `json:"quota"`
	ExpiresAt optTime `json:"expires_at"`
}

func (s *Server) handleEditShareRules(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req editShareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	share, err := s.shares.EditRules(r.Context(), id, chi.URLParam(r, "id"), services.ShareRules{
		Quota:     req.Quota,
		SetExpiry: req.ExpiresAt.Set,
		ExpiresAt: req.ExpiresAt.Value,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toShareResponse(share, true, false))
}

func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	if err := s.shares.Revoke(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
