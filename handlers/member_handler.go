package handlers

import (
	"errors"
	"net/http"

	"github.com/courseloft/teams-api/middleware"
	"github.com/courseloft/teams-api/services"
	"github.com/go-chi/chi/v5"
)

// MemberHandler exposes the invitation and membership operations.
type MemberHandler struct {
	inviteService    services.InviteService
	dashboardService services.DashboardService
}

func NewMemberHandler(is services.InviteService, ds services.DashboardService) *MemberHandler {
	return &MemberHandler{inviteService: is, dashboardService: ds}
}

func (h *MemberHandler) InviteMemberHandler(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	callerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "failed to identify current user")
		return
	}

	var input struct {
		Email string `json:"email"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	member, err := h.inviteService.InviteMember(r.Context(), teamID, input.Email, callerID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusCreated, jsonResponse{"member": member})
}

func (h *MemberHandler) AcceptInviteHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		badRequestResponse(w, errors.New("missing invite token in URL path"))
		return
	}
	callerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "authentication required to accept an invite")
		return
	}

	member, err := h.inviteService.AcceptInvite(r.Context(), token, callerID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, jsonResponse{"member": member})
}

// DeclineInviteHandler is unauthenticated: the token itself is the
// credential, and the invitee may not have an account at all.
func (h *MemberHandler) DeclineInviteHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		badRequestResponse(w, errors.New("missing invite token in URL path"))
		return
	}

	if err := h.inviteService.DeclineInvite(r.Context(), token); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, nil)
}

func (h *MemberHandler) LeaveTeamHandler(w http.ResponseWriter, r *http.Request) {
	callerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "failed to identify current user")
		return
	}

	if err := h.inviteService.LeaveTeam(r.Context(), callerID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, nil)
}

func (h *MemberHandler) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	memberID, err := getIDFromURL(r, "memberID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	callerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "failed to identify current user")
		return
	}

	if err := h.inviteService.RemoveMember(r.Context(), teamID, memberID, callerID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, nil)
}

func (h *MemberHandler) ResendInviteHandler(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	memberID, err := getIDFromURL(r, "memberID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	callerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "failed to identify current user")
		return
	}

	member, err := h.inviteService.ResendInvite(r.Context(), teamID, memberID, callerID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, jsonResponse{"member": member})
}

func (h *MemberHandler) ListMembersHandler(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	callerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "failed to identify current user")
		return
	}

	members, err := h.dashboardService.ListMembers(r.Context(), teamID, callerID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, jsonResponse{"members": members})
}
