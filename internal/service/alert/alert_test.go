package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMessage struct {
	kind        string
	level       model.DangerLevel
	description string
	imageURL    string
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sentMessage
	err   error
	delay time.Duration
}

func (n *fakeNotifier) record(ctx context.Context, msg sentMessage) error {
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) SendInitialAlert(ctx context.Context, level model.DangerLevel, description string) error {
	return n.record(ctx, sentMessage{kind: "initial", level: level, description: description})
}

func (n *fakeNotifier) SendStatusResponse(ctx context.Context, level model.DangerLevel) error {
	return n.record(ctx, sentMessage{kind: "status", level: level})
}

func (n *fakeNotifier) SendImageResponse(ctx context.Context, imageURL string) error {
	return n.record(ctx, sentMessage{kind: "image", imageURL: imageURL})
}

func (n *fakeNotifier) SendInvalidResponse(ctx context.Context) error {
	return n.record(ctx, sentMessage{kind: "invalid"})
}

func (n *fakeNotifier) fail(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *fakeNotifier) count(kind string) int {
	total := 0
	for _, msg := range n.messages() {
		if msg.kind == kind {
			total++
		}
	}
	return total
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (b *fakeBroadcaster) Broadcast(message []byte) bool {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		return false
	}
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	return true
}

type fixture struct {
	clock       *fakeClock
	repo        *memory.StateRepository
	notifier    *fakeNotifier
	broadcaster *fakeBroadcaster
	state       *StateService
	escalation  *EscalationService
}

func testConfig() *config.Config {
	return &config.Config{
		AlertStreakThreshold: 3,
		AlertCooldown:        60 * time.Second,
		AlertHistoryLimit:    100,
		NotifyTimeout:        time.Second,
		TwilioToNumber:       "+15550002222",
		PublicBaseURL:        "https://cam.example",
		DefaultCameraID:      "default",
	}
}

func newFixture(t *testing.T, repo *memory.StateRepository) *fixture {
	t.Helper()
	if repo == nil {
		repo = memory.NewStateRepository()
	}
	f := &fixture{
		clock:       newFakeClock(),
		repo:        repo,
		notifier:    &fakeNotifier{},
		broadcaster: &fakeBroadcaster{},
	}
	f.state = NewStateService(context.Background(), repo, testConfig(), logger.Nop(), WithStateClock(f.clock.Now))
	f.escalation = NewEscalationService(f.state, f.notifier, f.broadcaster, testConfig(), logger.Nop())
	return f
}

func (f *fixture) record(t *testing.T, level model.DangerLevel) Result {
	t.Helper()
	result, _ := f.escalation.Record(context.Background(), level, "scene: "+string(level))
	return result
}

func TestRecordClassification_StreakRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.Equal(t, 1, f.state.RecordClassification(ctx, model.LevelDanger))
	assert.Equal(t, 2, f.state.RecordClassification(ctx, model.LevelDanger))
	assert.Equal(t, 0, f.state.RecordClassification(ctx, model.LevelWarning))
	assert.Equal(t, 1, f.state.RecordClassification(ctx, model.LevelDanger))
	assert.Equal(t, 0, f.state.RecordClassification(ctx, model.LevelSafe))
	assert.Equal(t, 0, f.state.RecordClassification(ctx, model.LevelSafe))
	assert.Equal(t, model.LevelSafe, f.state.LastLevel())
}

func TestRecordClassification_PersistsEveryMutation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.state.RecordClassification(ctx, model.LevelDanger)
	f.state.RecordClassification(ctx, model.LevelDanger)

	assert.Equal(t, 2, f.repo.Saves())
	persisted, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, persisted.ConsecutiveDangerCount)
	assert.Equal(t, model.LevelDanger, persisted.LastLevel)
}

func TestEscalation_ThreeDangersDispatchOnce(t *testing.T) {
	f := newFixture(t, nil)

	first := f.record(t, model.LevelDanger)
	second := f.record(t, model.LevelDanger)
	third := f.record(t, model.LevelDanger)

	assert.Equal(t, OutcomeInsufficient, first.Outcome)
	assert.Equal(t, OutcomeInsufficient, second.Outcome)
	assert.Equal(t, OutcomeDispatched, third.Outcome)
	assert.Equal(t, 3, third.ConsecutiveCount)
	require.NotNil(t, third.Record)
	assert.Equal(t, model.ReasonInitial, third.Record.Reason)

	assert.Equal(t, 1, f.notifier.count("initial"))
	snapshot := f.state.Snapshot()
	require.Len(t, snapshot.AlertHistory, 1)
	require.NotNil(t, snapshot.LastAlertSentAt)
	assert.True(t, f.clock.Now().Equal(*snapshot.LastAlertSentAt))
}

func TestEscalation_FourthDangerWithinCooldownIsThrottled(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 3; i++ {
		f.record(t, model.LevelDanger)
	}
	f.clock.Advance(30 * time.Second)
	fourth := f.record(t, model.LevelDanger)

	assert.Equal(t, OutcomeThrottled, fourth.Outcome)
	assert.Equal(t, 4, fourth.ConsecutiveCount)
	assert.Equal(t, model.PhaseThrottled, fourth.Phase)
	assert.Equal(t, 1, f.notifier.count("initial"))
}

func TestEscalation_DispatchesAgainAfterCooldown(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 3; i++ {
		f.record(t, model.LevelDanger)
	}
	f.clock.Advance(59 * time.Second)
	assert.Equal(t, OutcomeThrottled, f.record(t, model.LevelDanger).Outcome)

	f.clock.Advance(time.Second)
	result := f.record(t, model.LevelDanger)
	assert.Equal(t, OutcomeDispatched, result.Outcome)
	assert.Equal(t, 5, result.ConsecutiveCount)
	assert.Equal(t, 2, f.notifier.count("initial"))
}

func TestEscalation_InterruptedStreak(t *testing.T) {
	f := newFixture(t, nil)

	levels := []model.DangerLevel{
		model.LevelDanger, model.LevelDanger, model.LevelWarning,
		model.LevelDanger, model.LevelDanger, model.LevelDanger,
	}
	var counts []int
	var outcomes []Outcome
	for _, level := range levels {
		result := f.record(t, level)
		counts = append(counts, result.ConsecutiveCount)
		outcomes = append(outcomes, result.Outcome)
	}

	assert.Equal(t, []int{1, 2, 0, 1, 2, 3}, counts)
	assert.Equal(t, []Outcome{
		OutcomeInsufficient, OutcomeInsufficient, OutcomeNotEscalating,
		OutcomeInsufficient, OutcomeInsufficient, OutcomeDispatched,
	}, outcomes)
	assert.Equal(t, 1, f.notifier.count("initial"))
}

func TestEscalation_NonDangerNeverDispatches(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 5; i++ {
		assert.Equal(t, OutcomeNotEscalating, f.record(t, model.LevelWarning).Outcome)
	}
	assert.Empty(t, f.notifier.messages())
	assert.Equal(t, model.PhaseIdle, f.state.Phase())
}

func TestEscalation_DispatchFailureLeavesThrottleUntouched(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.fail(errors.New("carrier unavailable"))

	f.record(t, model.LevelDanger)
	f.record(t, model.LevelDanger)
	before := f.state.Snapshot()

	result, err := f.escalation.Record(context.Background(), model.LevelDanger, "scene")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.ErrorContains(t, err, "carrier unavailable")
	assert.Equal(t, OutcomeFailed, result.Outcome)

	after := f.state.Snapshot()
	assert.Nil(t, after.LastAlertSentAt)
	assert.Equal(t, before.AlertHistory, after.AlertHistory)
	assert.False(t, f.state.IsThrottled())

	f.notifier.fail(nil)
	retry := f.record(t, model.LevelDanger)
	assert.Equal(t, OutcomeDispatched, retry.Outcome)
	assert.Equal(t, 4, retry.ConsecutiveCount)
}

func TestEscalation_NotifierTimeoutIsDispatchFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.delay = time.Second
	f.escalation.notifyTimeout = 20 * time.Millisecond

	f.record(t, model.LevelDanger)
	f.record(t, model.LevelDanger)
	result, err := f.escalation.Record(context.Background(), model.LevelDanger, "scene")

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, f.state.Snapshot().LastAlertSentAt)
}

func TestEscalation_ConcurrentEventsDispatchOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.delay = 10 * time.Millisecond

	f.record(t, model.LevelDanger)
	f.record(t, model.LevelDanger)

	var dispatched atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.escalation.Record(context.Background(), model.LevelDanger, "burst")
			assert.NoError(t, err)
			if result.Outcome == OutcomeDispatched {
				dispatched.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dispatched.Load())
	assert.Equal(t, 1, f.notifier.count("initial"))
	assert.Equal(t, 18, f.state.Snapshot().ConsecutiveDangerCount)
}

func TestEscalation_PublishesEvents(t *testing.T) {
	f := newFixture(t, nil)

	f.record(t, model.LevelDanger)
	f.record(t, model.LevelSafe)

	require.Len(t, f.broadcaster.events, 2)
	assert.Equal(t, "escalation", f.broadcaster.events[0].Type)
	assert.Equal(t, OutcomeInsufficient, f.broadcaster.events[0].Outcome)
	assert.Equal(t, model.PhaseAccumulating, f.broadcaster.events[0].Phase)
	assert.Equal(t, OutcomeNotEscalating, f.broadcaster.events[1].Outcome)
	assert.Equal(t, model.PhaseIdle, f.broadcaster.events[1].Phase)
}

func TestStateService_HistoryBoundedFIFO(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		f.state.RecordAlertDispatched(ctx, model.LevelDanger, fmt.Sprintf("alert %d", i), model.ReasonInitial)
	}

	history := f.state.Snapshot().AlertHistory
	require.Len(t, history, 100)
	assert.Equal(t, "alert 5", history[0].Description)
	assert.Equal(t, "alert 104", history[99].Description)
}

func TestStateService_PersistFailureKeepsMemoryState(t *testing.T) {
	repo := memory.NewStateRepository()
	f := newFixture(t, repo)
	repo.FailSaves(errors.New("disk full"))

	assert.Equal(t, 1, f.state.RecordClassification(context.Background(), model.LevelDanger))
	assert.Equal(t, 2, f.state.RecordClassification(context.Background(), model.LevelDanger))
	assert.Equal(t, 2, f.state.Snapshot().ConsecutiveDangerCount)
	assert.Equal(t, 0, repo.Saves())
}

func TestStateService_RestartRestoresPosture(t *testing.T) {
	repo := memory.NewStateRepository()
	f := newFixture(t, repo)

	for i := 0; i < 3; i++ {
		f.record(t, model.LevelDanger)
	}
	require.Equal(t, model.PhaseThrottled, f.state.Phase())

	restarted := NewStateService(context.Background(), repo, testConfig(), logger.Nop(), WithStateClock(f.clock.Now))
	assert.Equal(t, f.state.Snapshot(), restarted.Snapshot())
	assert.True(t, restarted.IsThrottled())
	assert.True(t, restarted.ShouldEscalate())
	assert.Equal(t, model.PhaseThrottled, restarted.Phase())

	escalation := NewEscalationService(restarted, f.notifier, nil, testConfig(), logger.Nop())
	result, err := escalation.Record(context.Background(), model.LevelDanger, "still there")
	require.NoError(t, err)
	assert.Equal(t, OutcomeThrottled, result.Outcome)
}

func TestStateService_LoadFailureStartsFresh(t *testing.T) {
	repo := memory.NewSeededStateRepository(model.AlertState{ConsecutiveDangerCount: 9})
	repo.FailLoads(errors.New("corrupt"))

	state := NewStateService(context.Background(), repo, testConfig(), logger.Nop())
	assert.Equal(t, 0, state.Snapshot().ConsecutiveDangerCount)
	assert.NotNil(t, state.Snapshot().AlertHistory)
}

func TestStateService_LoadTruncatesOversizedHistory(t *testing.T) {
	seed := model.AlertState{}
	for i := 0; i < 120; i++ {
		seed.AlertHistory = append(seed.AlertHistory, model.AlertRecord{Description: fmt.Sprintf("r%d", i)})
	}

	state := NewStateService(context.Background(), memory.NewSeededStateRepository(seed), testConfig(), logger.Nop())
	history := state.Snapshot().AlertHistory
	require.Len(t, history, 100)
	assert.Equal(t, "r20", history[0].Description)
}

func TestStateService_Phases(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.Equal(t, model.PhaseIdle, f.state.Phase())
	f.state.RecordClassification(ctx, model.LevelDanger)
	assert.Equal(t, model.PhaseAccumulating, f.state.Phase())
	f.state.RecordClassification(ctx, model.LevelDanger)
	f.state.RecordClassification(ctx, model.LevelDanger)
	assert.Equal(t, model.PhaseEscalated, f.state.Phase())
	f.state.RecordAlertDispatched(ctx, model.LevelDanger, "x", model.ReasonInitial)
	assert.Equal(t, model.PhaseThrottled, f.state.Phase())
	f.clock.Advance(time.Minute)
	assert.Equal(t, model.PhaseEscalated, f.state.Phase())
	f.state.RecordClassification(ctx, model.LevelSafe)
	assert.Equal(t, model.PhaseIdle, f.state.Phase())
}

func TestStateService_View(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	view := f.state.View()
	assert.Nil(t, view.SinceLastAlert)
	assert.False(t, view.Throttled)

	f.state.RecordAlertDispatched(ctx, model.LevelDanger, "x", model.ReasonInitial)
	f.clock.Advance(15 * time.Second)

	view = f.state.View()
	assert.True(t, view.Throttled)
	assert.Equal(t, 45*time.Second, view.ThrottleRemaining)
	require.NotNil(t, view.SinceLastAlert)
	assert.Equal(t, 15*time.Second, *view.SinceLastAlert)
}

func TestEscalation_Reset(t *testing.T) {
	repo := memory.NewStateRepository()
	f := newFixture(t, repo)

	for i := 0; i < 3; i++ {
		f.record(t, model.LevelDanger)
	}
	require.NoError(t, f.escalation.Reset(context.Background()))

	snapshot := f.state.Snapshot()
	assert.Equal(t, 0, snapshot.ConsecutiveDangerCount)
	assert.Nil(t, snapshot.LastAlertSentAt)
	assert.Empty(t, snapshot.AlertHistory)
	assert.Equal(t, model.LevelUnset, snapshot.LastLevel)

	_, err := repo.Load(context.Background())
	assert.Error(t, err)
}
