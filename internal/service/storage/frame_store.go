package storage

import (
	"context"
	"sync"
	"time"

	"camwatch/internal/logger"
	"camwatch/internal/metrics"
	"camwatch/internal/model"
)

// DefaultFrameTTL is how long a frame stays servable after capture.
const DefaultFrameTTL = 5 * time.Second

// FrameStore keeps at most one live frame per camera id and drops frames older than the TTL.
type FrameStore struct {
	mu     sync.RWMutex
	frames map[string]model.Frame
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger
}

type Option func(*FrameStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *FrameStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *logger.Logger) Option {
	return func(s *FrameStore) {
		s.logger = logger
	}
}

// NewFrameStore creates an empty store; a non-positive ttl falls back to DefaultFrameTTL.
func NewFrameStore(ttl time.Duration, opts ...Option) *FrameStore {
	if ttl <= 0 {
		ttl = DefaultFrameTTL
	}
	s := &FrameStore{
		frames: make(map[string]model.Frame),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured frame lifetime.
func (s *FrameStore) TTL() time.Duration {
	return s.ttl
}

// Put replaces the frame for cameraID and then sweeps every expired entry,
// including the one just written when capturedAt is already stale.
// A zero capturedAt is replaced by the current time.
func (s *FrameStore) Put(cameraID, payload string, capturedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if capturedAt.IsZero() {
		capturedAt = now
	}

	s.frames[cameraID] = model.Frame{
		CameraID:   cameraID,
		Payload:    payload,
		CapturedAt: capturedAt,
	}
	metrics.FramesStoredTotal.Inc()

	s.sweepLocked(now)
}

// Get returns the current frame for cameraID unless it is missing or expired.
func (s *FrameStore) Get(cameraID string) (model.Frame, bool) {
	s.mu.RLock()
	frame, ok := s.frames[cameraID]
	s.mu.RUnlock()

	if !ok || frame.Expired(s.now(), s.ttl) {
		return model.Frame{}, false
	}
	return frame, true
}

// Len returns the number of stored entries, expired ones included until swept.
func (s *FrameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Cameras lists the ids of frames that are still servable.
func (s *FrameStore) Cameras() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	ids := make([]string, 0, len(s.frames))
	for id, frame := range s.frames {
		if !frame.Expired(now, s.ttl) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Sweep removes expired frames and reports how many were dropped.
func (s *FrameStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *FrameStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, frame := range s.frames {
		if frame.Expired(now, s.ttl) {
			delete(s.frames, id)
			removed++
		}
	}

	if removed > 0 {
		metrics.FramesEvictedTotal.Add(float64(removed))
		s.logger.Info("Swept %d expired frame(s), %d remaining", removed, len(s.frames))
	}
	metrics.FramesLive.Set(float64(len(s.frames)))
	return removed
}

// Run sweeps on a ticker until ctx is cancelled. Eviction on Put does not depend on it.
func (s *FrameStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
