package routes

import (
	"net/http"

	"github.com/courseloft/teams-api/handlers"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes mounts the webhook ingress, the callable operations and
// the live dashboard socket.
func SetupRoutes(
	router *chi.Mux,
	authenticate func(http.Handler) http.Handler,
	webhookHandler *handlers.WebhookHandler,
	memberHandler *handlers.MemberHandler,
	dashboardHandler *handlers.DashboardHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Provider webhook: authenticated by its signature, not by JWT.
	router.Post("/webhooks/billing", webhookHandler.HandleWebhook)

	router.Route("/api", func(r chi.Router) {
		// Declining an invite needs no account; the token is the credential.
		r.Post("/invites/{token}/decline", memberHandler.DeclineInviteHandler)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/invites/{token}/accept", memberHandler.AcceptInviteHandler)
			r.Post("/teams/leave", memberHandler.LeaveTeamHandler)

			r.Route("/teams/{teamID}", func(r chi.Router) {
				r.Post("/invites", memberHandler.InviteMemberHandler)
				r.Get("/members", memberHandler.ListMembersHandler)
				r.Delete("/members/{memberID}", memberHandler.RemoveMemberHandler)
				r.Post("/members/{memberID}/resend", memberHandler.ResendInviteHandler)
				r.Get("/live", webSocketHandler.ServeWs)
			})

			r.Get("/dashboard", dashboardHandler.GetDashboardHandler)
			r.Get("/access", dashboardHandler.CheckAccessHandler)
		})
	})
}
