package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/logger"
	"camwatch/internal/metrics"
	"camwatch/internal/model"
	"camwatch/internal/repository"

	"github.com/google/uuid"
)

const (
	DefaultStreakThreshold = 3
	DefaultCooldown        = 60 * time.Second
	DefaultHistoryLimit    = 100

	persistTimeout = 5 * time.Second
)

// StateService owns the alert state. Every mutation is written to the repository before it returns;
// a failed write is logged and the in-memory state is kept.
type StateService struct {
	mu           sync.Mutex
	state        model.AlertState
	repo         repository.StateRepository
	now          func() time.Time
	threshold    int
	cooldown     time.Duration
	historyLimit int
	logger       *logger.Logger
}

type StateOption func(*StateService)

func WithStateClock(now func() time.Time) StateOption {
	return func(s *StateService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStateService loads the persisted state, starting from zero when nothing usable is stored.
func NewStateService(ctx context.Context, repo repository.StateRepository, config *config.Config, logger *logger.Logger, opts ...StateOption) *StateService {
	s := &StateService{
		repo:         repo,
		now:          time.Now,
		threshold:    DefaultStreakThreshold,
		cooldown:     DefaultCooldown,
		historyLimit: DefaultHistoryLimit,
		logger:       logger,
	}
	if config != nil {
		if config.AlertStreakThreshold > 0 {
			s.threshold = config.AlertStreakThreshold
		}
		if config.AlertCooldown > 0 {
			s.cooldown = config.AlertCooldown
		}
		if config.AlertHistoryLimit > 0 {
			s.historyLimit = config.AlertHistoryLimit
		}
	}
	for _, opt := range opts {
		opt(s)
	}

	s.load(ctx)
	return s
}

func (s *StateService) load(ctx context.Context) {
	state, err := s.repo.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrStateNotFound):
		s.logger.Info("No persisted alert state, starting fresh")
		state = model.AlertState{}
	case err != nil:
		s.logger.Error("Failed to load alert state, starting fresh: %v", err)
		state = model.AlertState{}
	default:
		s.logger.Info("Loaded alert state: streak=%d lastLevel=%s history=%d",
			state.ConsecutiveDangerCount, state.LastLevel, len(state.AlertHistory))
	}

	if state.AlertHistory == nil {
		state.AlertHistory = []model.AlertRecord{}
	}
	s.state = state
	s.truncateHistoryLocked()
	metrics.ConsecutiveDangerCount.Set(float64(state.ConsecutiveDangerCount))
}

// RecordClassification applies one classifier label to the streak and returns the new count.
func (s *StateService) RecordClassification(ctx context.Context, level model.DangerLevel) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if level == model.LevelDanger {
		if s.state.LastLevel == model.LevelDanger {
			s.state.ConsecutiveDangerCount++
		} else {
			s.state.ConsecutiveDangerCount = 1
		}
	} else {
		s.state.ConsecutiveDangerCount = 0
	}
	s.state.LastLevel = level

	metrics.ClassificationsTotal.WithLabelValues(string(level)).Inc()
	metrics.ConsecutiveDangerCount.Set(float64(s.state.ConsecutiveDangerCount))

	s.persistLocked(ctx)
	return s.state.ConsecutiveDangerCount
}

// IsThrottled reports whether an alert was sent less than the cooldown ago.
func (s *StateService) IsThrottled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isThrottledLocked(s.now())
}

// ShouldEscalate reports whether the streak has reached the threshold.
func (s *StateService) ShouldEscalate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ConsecutiveDangerCount >= s.threshold
}

// RecordAlertDispatched starts a new cooldown and appends the alert to history.
func (s *StateService) RecordAlertDispatched(ctx context.Context, level model.DangerLevel, description string, reason model.AlertReason) model.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.state.LastAlertSentAt = &now
	record := s.appendLocked(now, level, description, reason)

	s.persistLocked(ctx)
	return record
}

// RecordOperatorReply appends a reply to history. The streak and the cooldown are left alone.
func (s *StateService) RecordOperatorReply(ctx context.Context, description string, reason model.AlertReason) model.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := s.state.LastLevel
	if level == model.LevelUnset {
		level = model.DangerLevel(level.String())
	}
	record := s.appendLocked(s.now(), level, description, reason)

	s.persistLocked(ctx)
	return record
}

// Reset clears the state and removes the persisted record.
func (s *StateService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = model.AlertState{AlertHistory: []model.AlertRecord{}}
	metrics.ConsecutiveDangerCount.Set(0)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.repo.Delete(writeCtx); err != nil {
		metrics.StatePersistFailuresTotal.Inc()
		s.logger.Error("Failed to delete persisted alert state: %v", err)
		return err
	}
	s.logger.Warning("Alert state reset")
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *StateService) Snapshot() model.AlertState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *StateService) LastLevel() model.DangerLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastLevel
}

func (s *StateService) Phase() model.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked(s.now())
}

// StateView is a consistent read of the state plus values derived from the clock.
type StateView struct {
	State             model.AlertState
	Phase             model.Phase
	Throttled         bool
	ThrottleRemaining time.Duration
	SinceLastAlert    *time.Duration
}

func (s *StateService) View() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	view := StateView{
		State:     s.state.Clone(),
		Phase:     s.phaseLocked(now),
		Throttled: s.isThrottledLocked(now),
	}
	if s.state.LastAlertSentAt != nil {
		since := now.Sub(*s.state.LastAlertSentAt)
		view.SinceLastAlert = &since
		if view.Throttled {
			view.ThrottleRemaining = s.cooldown - since
		}
	}
	return view
}

func (s *StateService) Threshold() int {
	return s.threshold
}

func (s *StateService) Cooldown() time.Duration {
	return s.cooldown
}

func (s *StateService) isThrottledLocked(now time.Time) bool {
	if s.state.LastAlertSentAt == nil {
		return false
	}
	return now.Sub(*s.state.LastAlertSentAt) < s.cooldown
}

func (s *StateService) phaseLocked(now time.Time) model.Phase {
	switch count := s.state.ConsecutiveDangerCount; {
	case count == 0:
		return model.PhaseIdle
	case count < s.threshold:
		return model.PhaseAccumulating
	case s.isThrottledLocked(now):
		return model.PhaseThrottled
	default:
		return model.PhaseEscalated
	}
}

func (s *StateService) appendLocked(now time.Time, level model.DangerLevel, description string, reason model.AlertReason) model.AlertRecord {
	record := model.AlertRecord{
		ID:          uuid.NewString(),
		Timestamp:   now,
		DangerLevel: level,
		Description: description,
		Reason:      reason,
	}
	s.state.AlertHistory = append(s.state.AlertHistory, record)
	s.truncateHistoryLocked()
	return record
}

// truncateHistoryLocked drops the oldest records beyond the limit.
func (s *StateService) truncateHistoryLocked() {
	if over := len(s.state.AlertHistory) - s.historyLimit; over > 0 {
		s.state.AlertHistory = append([]model.AlertRecord(nil), s.state.AlertHistory[over:]...)
	}
}

// persistLocked writes the whole state. The caller's cancellation does not abort the write.
func (s *StateService) persistLocked(ctx context.Context) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.repo.Save(writeCtx, s.state.Clone()); err != nil {
		metrics.StatePersistFailuresTotal.Inc()
		s.logger.Error("Failed to persist alert state: %v", err)
	}
}
