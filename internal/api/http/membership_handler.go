package http

import (
	"net/http"

	"gymcore-backend/internal/service"

	"github.com/gorilla/mux"
)

type joinGymRequest struct {
	Code string `json:"code"`
}

type banRequest struct {
	Reason string `json:"reason"`
}

type MembershipHandler struct {
	memberships service.MembershipService
}

func NewMembershipHandler(memberships service.MembershipService) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

func (h *MembershipHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user id missing from token")
		return
	}

	var req joinGymRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	membership, err := h.memberships.JoinGym(r.Context(), req.Code, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, membership)
}

func (h *MembershipHandler) Ban(w http.ResponseWriter, r *http.Request) {
	managerID, _ := GetUserIDFromContext(r.Context())
	id := mux.Vars(r)["id"]

	var req banRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	membership, err := h.memberships.Ban(r.Context(), id, managerID, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membership)
}
