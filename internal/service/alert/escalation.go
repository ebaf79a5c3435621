package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/logger"
	"camwatch/internal/metrics"
	"camwatch/internal/model"
	"camwatch/internal/service/notify"
)

const DefaultNotifyTimeout = 10 * time.Second

// ErrDispatchFailed wraps notifier errors, timeouts included.
var ErrDispatchFailed = errors.New("failed to send alert")

// Outcome is the result of feeding one classification through the pipeline.
type Outcome string

const (
	OutcomeNotEscalating Outcome = "not_escalating"
	OutcomeInsufficient  Outcome = "insufficient"
	OutcomeThrottled     Outcome = "throttled"
	OutcomeDispatched    Outcome = "dispatched"
	OutcomeFailed        Outcome = "failed"
)

type Result struct {
	Outcome          Outcome
	Level            model.DangerLevel
	ConsecutiveCount int
	Phase            model.Phase
	Record           *model.AlertRecord
}

// Broadcaster receives escalation events. It must not block.
type Broadcaster interface {
	Broadcast(message []byte) bool
}

// Event is what live subscribers see for every classification.
type Event struct {
	Type             string            `json:"type"`
	Outcome          Outcome           `json:"outcome"`
	DangerLevel      model.DangerLevel `json:"dangerLevel"`
	Description      string            `json:"description,omitempty"`
	ConsecutiveCount int               `json:"consecutiveCount"`
	Phase            model.Phase       `json:"phase"`
	Timestamp        int64             `json:"timestamp"`
}

// EscalationService turns classification events into rate-limited operator alerts.
type EscalationService struct {
	// pipeline serializes record, check and dispatch so two events never both send
	pipeline      sync.Mutex
	state         *StateService
	notifier      notify.Notifier
	broadcaster   Broadcaster
	notifyTimeout time.Duration
	logger        *logger.Logger
}

func NewEscalationService(state *StateService, notifier notify.Notifier, broadcaster Broadcaster, config *config.Config, logger *logger.Logger) *EscalationService {
	timeout := DefaultNotifyTimeout
	if config != nil && config.NotifyTimeout > 0 {
		timeout = config.NotifyTimeout
	}
	return &EscalationService{
		state:         state,
		notifier:      notifier,
		broadcaster:   broadcaster,
		notifyTimeout: timeout,
		logger:        logger,
	}
}

// Record runs one classification through the pipeline. The error is non-nil only for OutcomeFailed.
func (s *EscalationService) Record(ctx context.Context, level model.DangerLevel, description string) (Result, error) {
	s.pipeline.Lock()
	defer s.pipeline.Unlock()

	count := s.state.RecordClassification(ctx, level)
	result := Result{Level: level, ConsecutiveCount: count}

	var dispatchErr error
	switch {
	case level != model.LevelDanger:
		result.Outcome = OutcomeNotEscalating
	case !s.state.ShouldEscalate():
		result.Outcome = OutcomeInsufficient
	case s.state.IsThrottled():
		result.Outcome = OutcomeThrottled
		s.logger.Info("Alert throttled: streak=%d, last alert less than %s ago", count, s.state.Cooldown())
	default:
		dispatchErr = s.dispatch(ctx, level, description)
		if dispatchErr != nil {
			result.Outcome = OutcomeFailed
			metrics.NotificationFailuresTotal.WithLabelValues(notify.KindInitial).Inc()
			s.logger.Error("Failed to send alert: %v", dispatchErr)
		} else {
			record := s.state.RecordAlertDispatched(ctx, level, description, model.ReasonInitial)
			result.Outcome = OutcomeDispatched
			result.Record = &record
			s.logger.Warning("Alert sent: level=%s streak=%d description=%q", level, count, description)
		}
	}

	result.Phase = s.state.Phase()
	metrics.EscalationOutcomesTotal.WithLabelValues(string(result.Outcome)).Inc()
	s.publish(result, description)

	return result, dispatchErr
}

func (s *EscalationService) dispatch(ctx context.Context, level model.DangerLevel, description string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	if err := s.notifier.SendInitialAlert(sendCtx, level, description); err != nil {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	return nil
}

func (s *EscalationService) publish(result Result, description string) {
	if s.broadcaster == nil {
		return
	}

	payload, err := json.Marshal(Event{
		Type:             "escalation",
		Outcome:          result.Outcome,
		DangerLevel:      result.Level,
		Description:      description,
		ConsecutiveCount: result.ConsecutiveCount,
		Phase:            result.Phase,
		Timestamp:        time.Now().UnixMilli(),
	})
	if err != nil {
		s.logger.Error("Failed to encode escalation event: %v", err)
		return
	}
	s.broadcaster.Broadcast(payload)
}

// Reset clears the alert state under the pipeline lock.
func (s *EscalationService) Reset(ctx context.Context) error {
	s.pipeline.Lock()
	defer s.pipeline.Unlock()
	return s.state.Reset(ctx)
}

func (s *EscalationService) State() *StateService {
	return s.state
}
