package dto

import (
	"encoding/json"
	"time"

	"camwatch/internal/model"
)

// AlertRequest is one classification event. PersonGrid is accepted from the dashboard and ignored.
type AlertRequest struct {
	DangerLevel string          `json:"dangerLevel"`
	Description string          `json:"description"`
	PersonGrid  json.RawMessage `json:"personGrid,omitempty"`
}

type AlertResponse struct {
	Success          bool        `json:"success"`
	Message          string      `json:"message"`
	ConsecutiveCount int         `json:"consecutiveCount"`
	Throttled        bool        `json:"throttled,omitempty"`
	Phase            model.Phase `json:"phase,omitempty"`
}

type AlertRecordData struct {
	ID          string `json:"id,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	DangerLevel string `json:"dangerLevel"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

type DebugState struct {
	ConsecutiveDangerCount   int               `json:"consecutiveDangerCount"`
	LastAlertSentTime        *string           `json:"lastAlertSentTime"`
	LastDangerLevel          *string           `json:"lastDangerLevel"`
	AlertHistory             []AlertRecordData `json:"alertHistory"`
	IsThrottled              bool              `json:"isThrottled"`
	TimeSinceLastAlert       *int64            `json:"timeSinceLastAlert"`
	ThrottleSecondsRemaining int64             `json:"throttleSecondsRemaining"`
	Phase                    model.Phase       `json:"phase"`
}

type DebugResponse struct {
	Status string     `json:"status"`
	State  DebugState `json:"state"`
}

type ResetResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status      string      `json:"status"`
	LiveFrames  int         `json:"liveFrames"`
	AlertPhase  model.Phase `json:"alertPhase"`
	Subscribers int         `json:"subscribers"`
	Time        time.Time   `json:"time"`
}

func NewAlertRecordData(record model.AlertRecord) AlertRecordData {
	return AlertRecordData{
		ID:          record.ID,
		Timestamp:   record.Timestamp.UnixMilli(),
		DangerLevel: string(record.DangerLevel),
		Description: record.Description,
		Reason:      string(record.Reason),
	}
}
