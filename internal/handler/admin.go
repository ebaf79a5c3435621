package handler

import (
	"net/http"
	"time"

	"camwatch/internal/dto"
	"camwatch/internal/logger"
	"camwatch/internal/service/alert"
	"camwatch/internal/service/relay"
	"camwatch/internal/service/websocket"
)

// ResetAlertsHandler clears the escalation state and its persisted record.
func ResetAlertsHandler(escalation *alert.EscalationService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := escalation.Reset(r.Context()); err != nil {
			writeErrorDetails(w, http.StatusInternalServerError, "Failed to reset alert state", err)
			return
		}
		logger.Warning("Alert state reset by admin from %s", r.RemoteAddr)
		writeJSON(w, http.StatusOK, dto.ResetResponse{Status: "reset"})
	}
}

// HealthHandler reports liveness plus a short summary of both subsystems.
func HealthHandler(frames *relay.RelayService, state *alert.StateService, hub *websocket.HubService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.HealthResponse{
			Status:      "ok",
			LiveFrames:  len(frames.LiveCameras()),
			AlertPhase:  state.Phase(),
			Subscribers: hub.GetClientCount(),
			Time:        time.Now().UTC(),
		})
	}
}
