package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/courseloft/teams-api/live"
	"github.com/courseloft/teams-api/middleware"
	"github.com/courseloft/teams-api/services"
	"github.com/gorilla/websocket"
)

// WebSocketHandler subscribes an authenticated dashboard client to a
// team's live event room. Browser connections must originate from the
// configured public URL.
type WebSocketHandler struct {
	hub              *live.Hub
	dashboardService services.DashboardService
	logger           *slog.Logger
	upgrader         websocket.Upgrader
}

func NewWebSocketHandler(hub *live.Hub, ds services.DashboardService, publicURL string, logger *slog.Logger) *WebSocketHandler {
	allowedHost := ""
	if u, err := url.Parse(publicURL); err == nil {
		allowedHost = u.Host
	}
	return &WebSocketHandler{
		hub:              hub,
		dashboardService: ds,
		logger:           logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowedHost)
			},
		},
	}
}

// originAllowed accepts requests from the configured public host. An
// absent Origin header means a non-browser client, which passes.
func originAllowed(origin, allowedHost string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, allowedHost)
}

func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
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

	// Membership gate: only the owner or a bound member may listen.
	if _, err := h.dashboardService.ListMembers(r.Context(), teamID, callerID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed",
			slog.Int("team_id", teamID),
			slog.Any("error", err))
		return
	}

	live.NewClient(h.hub, conn, teamID)
}
