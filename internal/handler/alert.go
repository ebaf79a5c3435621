package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"camwatch/internal/dto"
	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/service/alert"
)

const (
	debugHistorySize = 10
	// alertBodyLimit covers the level, a description and the dashboard's person grid.
	alertBodyLimit = 16 << 10
)

// AlertHandler feeds one classification into the escalation pipeline.
func AlertHandler(escalation *alert.EscalationService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, alertBodyLimit)

		var request dto.AlertRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid or missing dangerLevel")
			return
		}

		level, err := model.ParseDangerLevel(request.DangerLevel)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid or missing dangerLevel")
			return
		}

		result, err := escalation.Record(r.Context(), level, request.Description)
		logger.Info("Danger level: %s, consecutive count: %d, outcome: %s", level, result.ConsecutiveCount, result.Outcome)

		switch result.Outcome {
		case alert.OutcomeDispatched:
			writeJSON(w, http.StatusOK, dto.AlertResponse{
				Success:          true,
				Message:          "Alert sent successfully",
				ConsecutiveCount: result.ConsecutiveCount,
				Phase:            result.Phase,
			})
		case alert.OutcomeThrottled:
			writeJSON(w, http.StatusTooManyRequests, dto.AlertResponse{
				Success:          false,
				Message:          "Alert throttled - will not send another alert within the cooldown window",
				ConsecutiveCount: result.ConsecutiveCount,
				Throttled:        true,
				Phase:            result.Phase,
			})
		case alert.OutcomeFailed:
			writeErrorDetails(w, http.StatusInternalServerError, "Failed to send SMS", err)
		default:
			writeJSON(w, http.StatusOK, dto.AlertResponse{
				Success:          false,
				Message:          "Not enough consecutive DANGER events to trigger alert",
				ConsecutiveCount: result.ConsecutiveCount,
				Phase:            result.Phase,
			})
		}
	}
}

// DebugHandler reports the escalation state for troubleshooting.
func DebugHandler(state *alert.StateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := state.View()

		debug := dto.DebugState{
			ConsecutiveDangerCount: view.State.ConsecutiveDangerCount,
			AlertHistory:           make([]dto.AlertRecordData, 0, debugHistorySize),
			IsThrottled:            view.Throttled,
			Phase:                  view.Phase,
		}
		if view.State.LastAlertSentAt != nil {
			sentAt := view.State.LastAlertSentAt.UTC().Format(time.RFC3339Nano)
			debug.LastAlertSentTime = &sentAt
		}
		if view.State.LastLevel != model.LevelUnset {
			level := string(view.State.LastLevel)
			debug.LastDangerLevel = &level
		}
		if view.SinceLastAlert != nil {
			seconds := int64(math.Round(view.SinceLastAlert.Seconds()))
			debug.TimeSinceLastAlert = &seconds
		}
		if view.ThrottleRemaining > 0 {
			debug.ThrottleSecondsRemaining = int64(math.Ceil(view.ThrottleRemaining.Seconds()))
		}
		for _, record := range view.State.RecentHistory(debugHistorySize) {
			debug.AlertHistory = append(debug.AlertHistory, dto.NewAlertRecordData(record))
		}

		writeJSON(w, http.StatusOK, dto.DebugResponse{Status: "ok", State: debug})
	}
}
