package handlers

import (
	"net/http"

	"github.com/courseloft/teams-api/middleware"
	"github.com/courseloft/teams-api/services"
)

type DashboardHandler struct {
	dashboardService services.DashboardService
}

func NewDashboardHandler(ds services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: ds}
}

func (h *DashboardHandler) GetDashboardHandler(w http.ResponseWriter, r *http.Request) {
	callerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "failed to identify current user")
		return
	}

	dashboard, err := h.dashboardService.GetDashboard(r.Context(), callerID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, jsonResponse{"dashboard": dashboard})
}

func (h *DashboardHandler) CheckAccessHandler(w http.ResponseWriter, r *http.Request) {
	callerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "failed to identify current user")
		return
	}

	access, err := h.dashboardService.CheckAccess(r.Context(), callerID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	successResponse(w, http.StatusOK, jsonResponse{"access": access})
}
