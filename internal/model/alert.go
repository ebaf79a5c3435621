package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDangerLevel is returned when a classification label is not SAFE, WARNING or DANGER.
var ErrInvalidDangerLevel = errors.New("invalid danger level")

// DangerLevel is the label produced by the external scene classifier.
type DangerLevel string

const (
	LevelUnset   DangerLevel = ""
	LevelSafe    DangerLevel = "SAFE"
	LevelWarning DangerLevel = "WARNING"
	LevelDanger  DangerLevel = "DANGER"
)

// ParseDangerLevel accepts exactly the three classifier labels.
func ParseDangerLevel(raw string) (DangerLevel, error) {
	switch level := DangerLevel(raw); level {
	case LevelSafe, LevelWarning, LevelDanger:
		return level, nil
	default:
		return LevelUnset, fmt.Errorf("%w: %q", ErrInvalidDangerLevel, raw)
	}
}

// StoredDangerLevel reads a persisted last level. Anything unrecognised loads as unset.
func StoredDangerLevel(raw string) DangerLevel {
	level, err := ParseDangerLevel(raw)
	if err != nil {
		return LevelUnset
	}
	return level
}

// String returns UNKNOWN for an unset level so it can be used in messages.
func (l DangerLevel) String() string {
	if l == LevelUnset {
		return "UNKNOWN"
	}
	return string(l)
}

// AlertReason records why a notification was emitted.
type AlertReason string

const (
	ReasonInitial       AlertReason = "initial"
	ReasonStatusRequest AlertReason = "response_1"
	ReasonImageRequest  AlertReason = "response_2"
)

// AlertRecord is one emitted or operator-requested notification.
type AlertRecord struct {
	ID          string      `json:"id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	DangerLevel DangerLevel `json:"dangerLevel"`
	Description string      `json:"description"`
	Reason      AlertReason `json:"reason"`
}

// AlertState is the durable escalation bookkeeping record.
type AlertState struct {
	ConsecutiveDangerCount int           `json:"consecutiveDangerCount"`
	LastLevel              DangerLevel   `json:"lastDangerLevel"`
	LastAlertSentAt        *time.Time    `json:"lastAlertSentTime"`
	AlertHistory           []AlertRecord `json:"alertHistory"`
}

// Clone returns a deep copy safe to hand outside the owning service.
func (s AlertState) Clone() AlertState {
	out := s
	if s.LastAlertSentAt != nil {
		sentAt := *s.LastAlertSentAt
		out.LastAlertSentAt = &sentAt
	}
	out.AlertHistory = make([]AlertRecord, len(s.AlertHistory))
	copy(out.AlertHistory, s.AlertHistory)
	return out
}

// RecentHistory returns up to n of the newest records, oldest first.
func (s AlertState) RecentHistory(n int) []AlertRecord {
	if n <= 0 || n > len(s.AlertHistory) {
		n = len(s.AlertHistory)
	}
	out := make([]AlertRecord, n)
	copy(out, s.AlertHistory[len(s.AlertHistory)-n:])
	return out
}

// Phase is the escalation state machine position derived from AlertState.
type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhaseAccumulating Phase = "ACCUMULATING"
	PhaseEscalated    Phase = "ESCALATED"
	PhaseThrottled    Phase = "THROTTLED"
)

// NormalizeReason maps free-form reason strings onto the known reasons.
func NormalizeReason(raw string) AlertReason {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "response_1", "status", "operator-requested-status":
		return ReasonStatusRequest
	case "response_2", "image", "operator-requested-image":
		return ReasonImageRequest
	default:
		return ReasonInitial
	}
}
