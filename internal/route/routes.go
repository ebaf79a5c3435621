package route

import (
	"net/http"

	"camwatch/internal/config"
	"camwatch/internal/handler"
	"camwatch/internal/logger"
	"camwatch/internal/metrics"
	"camwatch/internal/middleware"
	"camwatch/internal/service/alert"
	"camwatch/internal/service/relay"
	"camwatch/internal/service/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services bundles what the HTTP layer needs.
type Services struct {
	Relay      *relay.RelayService
	State      *alert.StateService
	Escalation *alert.EscalationService
	Replies    *alert.ReplyService
	Hub        *websocket.HubService
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// SetupRoutes registers the camera, alert, admin and operational endpoints.
func SetupRoutes(services Services, cfg *config.Config, logger *logger.Logger) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(metrics.HTTPMiddleware(routePattern))

	router.Route("/api/camera", func(r chi.Router) {
		postFrame := handler.PostFrameHandler(services.Relay, cfg, logger)
		r.Post("/frame", postFrame)
		r.Post("/upload", postFrame)
		r.Get("/frame", handler.GetFrameHandler(services.Relay))
		r.Get("/snapshot", handler.SnapshotHandler(services.Relay, logger))
	})

	router.Route("/api/sms", func(r chi.Router) {
		r.Post("/alert", handler.AlertHandler(services.Escalation, logger))
		r.Post("/incoming", handler.IncomingSMSHandler(services.Replies, logger))
		r.Get("/debug", handler.DebugHandler(services.State))
	})

	router.Get("/api/alerts/ws", handler.AlertFeedHandler(services.Hub, logger))

	router.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminToken))
		r.Post("/alerts/reset", handler.ResetAlertsHandler(services.Escalation, logger))
		r.Get("/logs/{level}", handler.ShowLogsHandler(logger))
		r.Post("/logs/{level}/clear", handler.ClearLogsHandler(logger))
	})

	router.Get("/health", handler.HealthHandler(services.Relay, services.State, services.Hub))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	return router
}
