package repository

import (
	"time"

	"camwatch/internal/model"
)

// StateDocument is the JSON layout of .sms-state.json; times are epoch milliseconds.
type StateDocument struct {
	ConsecutiveDangerCount int              `json:"consecutiveDangerCount"`
	LastAlertSentTime      *int64           `json:"lastAlertSentTime"`
	LastDangerLevel        *string          `json:"lastDangerLevel"`
	AlertHistory           []RecordDocument `json:"alertHistory"`
}

type RecordDocument struct {
	ID          string `json:"id,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	DangerLevel string `json:"dangerLevel"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// NewStateDocument converts a state into its persisted layout.
func NewStateDocument(state model.AlertState) StateDocument {
	doc := StateDocument{
		ConsecutiveDangerCount: state.ConsecutiveDangerCount,
		AlertHistory:           make([]RecordDocument, 0, len(state.AlertHistory)),
	}
	if state.LastAlertSentAt != nil {
		ms := state.LastAlertSentAt.UnixMilli()
		doc.LastAlertSentTime = &ms
	}
	if state.LastLevel != model.LevelUnset {
		level := string(state.LastLevel)
		doc.LastDangerLevel = &level
	}
	for _, record := range state.AlertHistory {
		doc.AlertHistory = append(doc.AlertHistory, RecordDocument{
			ID:          record.ID,
			Timestamp:   record.Timestamp.UnixMilli(),
			DangerLevel: string(record.DangerLevel),
			Description: record.Description,
			Reason:      string(record.Reason),
		})
	}
	return doc
}

// State converts the document back. Unknown levels load as unset, negative counts as zero.
func (d StateDocument) State() model.AlertState {
	state := model.AlertState{
		ConsecutiveDangerCount: max(d.ConsecutiveDangerCount, 0),
		AlertHistory:           make([]model.AlertRecord, 0, len(d.AlertHistory)),
	}
	if d.LastAlertSentTime != nil {
		sentAt := time.UnixMilli(*d.LastAlertSentTime)
		state.LastAlertSentAt = &sentAt
	}
	if d.LastDangerLevel != nil {
		state.LastLevel = model.StoredDangerLevel(*d.LastDangerLevel)
	}
	for _, record := range d.AlertHistory {
		state.AlertHistory = append(state.AlertHistory, model.AlertRecord{
			ID:          record.ID,
			Timestamp:   time.UnixMilli(record.Timestamp),
			DangerLevel: model.DangerLevel(record.DangerLevel),
			Description: record.Description,
			Reason:      model.NormalizeReason(record.Reason),
		})
	}
	return state
}
