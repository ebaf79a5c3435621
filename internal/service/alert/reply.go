package alert

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/logger"
	"camwatch/internal/metrics"
	"camwatch/internal/model"
	"camwatch/internal/service/notify"
)

// ReplyOutcome describes how an inbound operator message was handled.
type ReplyOutcome string

const (
	ReplyIgnored ReplyOutcome = "ignored"
	ReplyStatus  ReplyOutcome = "status"
	ReplyImage   ReplyOutcome = "image"
	ReplyInvalid ReplyOutcome = "invalid"
)

// FrameSource is the read side of the frame relay.
type FrameSource interface {
	Get(cameraID string) (model.Frame, bool)
}

// ReplyService answers operator text replies. Send failures are logged and never returned.
type ReplyService struct {
	state          *StateService
	notifier       notify.Notifier
	frames         FrameSource
	expectedSender string
	baseURL        string
	cameraID       string
	notifyTimeout  time.Duration
	logger         *logger.Logger
}

func NewReplyService(state *StateService, notifier notify.Notifier, frames FrameSource, config *config.Config, logger *logger.Logger) *ReplyService {
	s := &ReplyService{
		state:         state,
		notifier:      notifier,
		frames:        frames,
		cameraID:      model.DefaultCameraID,
		notifyTimeout: DefaultNotifyTimeout,
		logger:        logger,
	}
	if config != nil {
		s.expectedSender = config.TwilioToNumber
		s.baseURL = strings.TrimRight(config.PublicBaseURL, "/")
		if config.DefaultCameraID != "" {
			s.cameraID = config.DefaultCameraID
		}
		if config.NotifyTimeout > 0 {
			s.notifyTimeout = config.NotifyTimeout
		}
	}
	return s
}

// Handle processes one inbound message. Messages from anyone but the configured operator are ignored.
func (s *ReplyService) Handle(ctx context.Context, from, body string) ReplyOutcome {
	if s.expectedSender == "" || from != s.expectedSender {
		s.logger.Warning("Message from unexpected number: %s", from)
		return ReplyIgnored
	}

	switch strings.TrimSpace(body) {
	case "1":
		level := s.state.LastLevel()
		if s.send(ctx, notify.KindStatus, func(ctx context.Context) error {
			return s.notifier.SendStatusResponse(ctx, level)
		}) {
			s.state.RecordOperatorReply(ctx, "Status requested by user", model.ReasonStatusRequest)
		}
		return ReplyStatus

	case "2":
		imageURL := s.imageURL()
		if s.send(ctx, notify.KindImage, func(ctx context.Context) error {
			return s.notifier.SendImageResponse(ctx, imageURL)
		}) {
			s.state.RecordOperatorReply(ctx, "Image requested by user", model.ReasonImageRequest)
		}
		return ReplyImage

	default:
		s.logger.Info("Invalid response: %q. Expected \"1\" or \"2\"", strings.TrimSpace(body))
		s.send(ctx, notify.KindInvalid, s.notifier.SendInvalidResponse)
		return ReplyInvalid
	}
}

func (s *ReplyService) send(ctx context.Context, kind string, fn func(context.Context) error) bool {
	sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	if err := fn(sendCtx); err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues(kind).Inc()
		s.logger.Error("Failed to send %s response: %v", kind, err)
		return false
	}
	return true
}

// imageURL points at the snapshot of the live frame, or is empty when none is live.
func (s *ReplyService) imageURL() string {
	if s.frames == nil || s.baseURL == "" {
		return ""
	}
	frame, ok := s.frames.Get(s.cameraID)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s/api/camera/snapshot?cameraId=%s&t=%d",
		s.baseURL, url.QueryEscape(s.cameraID), frame.CapturedAt.UnixMilli())
}
