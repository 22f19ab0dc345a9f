package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/clock"
	"github.com/aegisshield/chain-monitor/internal/metrics"
	"github.com/aegisshield/chain-monitor/internal/models"
)

type fakeAgentStore struct {
	mu       sync.Mutex
	agents   map[uuid.UUID]*models.Agent
	progress map[uuid.UUID][]int
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{
		agents:   make(map[uuid.UUID]*models.Agent),
		progress: make(map[uuid.UUID][]int),
	}
}

func (s *fakeAgentStore) add(agent *models.Agent) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	clone := *agent
	s.agents[agent.ID] = &clone
	return agent
}

func (s *fakeAgentStore) List(ctx context.Context) ([]*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		clone := *agent
		out = append(out, &clone)
	}
	return out, nil
}

func (s *fakeAgentStore) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s not found", id)
	}
	clone := *agent
	return &clone, nil
}

func (s *fakeAgentStore) FindByType(ctx context.Context, t models.AgentType) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, agent := range s.agents {
		if agent.Type == t {
			clone := *agent
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *agent
	s.agents[agent.ID] = &clone
	return nil
}

func (s *fakeAgentStore) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s not found", id)
	}
	for key, value := range fields {
		switch key {
		case "status":
			agent.Status = value.(models.AgentStatus)
		case "progress":
			agent.Progress = value.(int)
			s.progress[id] = append(s.progress[id], agent.Progress)
		case "last_run":
			t := value.(time.Time)
			agent.LastRun = &t
		case "next_run":
			t := value.(time.Time)
			agent.NextRun = &t
		case "config":
			agent.Config = value.(models.JSON)
		}
	}
	clone := *agent
	return &clone, nil
}

func (s *fakeAgentStore) progressHistory(id uuid.UUID) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.progress[id]))
	copy(out, s.progress[id])
	return out
}

type recordedEvent struct {
	Type string
	Data interface{}
}

type recorderBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorderBroadcaster) Broadcast(eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Data: data})
}

func (r *recorderBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type handlerFunc func(ctx context.Context, agent *models.Agent) error

func (f handlerFunc) Execute(ctx context.Context, agent *models.Agent) error {
	return f(ctx, agent)
}

func newTestScheduler(t *testing.T, store *fakeAgentStore, handler Handler) (*Scheduler, *clock.Fake, *recorderBroadcaster) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	rec := &recorderBroadcaster{}
	collector := metrics.NewCollector(prometheus.NewRegistry())
	handlers := &HandlerSet{
		monitor:   handler,
		behavior:  handler,
		scoring:   handler,
		alerting:  handler,
		reporting: handler,
	}
	sched := NewScheduler(store, handlers, rec, clk, collector, zap.NewNop())
	return sched, clk, rec
}

func TestCycleWalksProgressLadder(t *testing.T) {
	store := newFakeAgentStore()
	agent := store.add(&models.Agent{
		Name:            "Chain Monitor",
		Type:            models.AgentTypeMonitor,
		Status:          models.AgentStatusActive,
		IntervalSeconds: 80,
	})

	var dispatchedAt []int
	handler := handlerFunc(func(ctx context.Context, a *models.Agent) error {
		dispatchedAt = append(dispatchedAt, a.Progress)
		return nil
	})
	sched, clk, _ := newTestScheduler(t, store, handler)
	require.NoError(t, sched.Start(context.Background()))

	require.Equal(t, []time.Duration{0}, clk.PendingDelays())
	require.Equal(t, 1, clk.Fire())

	assert.Equal(t, []int{0, 10, 25, 40, 55, 70, 85, 95, 100, 0}, store.progressHistory(agent.ID))
	assert.Equal(t, []int{DispatchProgress}, dispatchedAt, "handler runs exactly once, at the dispatch rung")

	final, err := store.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusActive, final.Status)
	assert.Equal(t, 0, final.Progress)
	require.NotNil(t, final.LastRun)
	require.NotNil(t, final.NextRun)
	assert.Equal(t, 80*time.Second, final.NextRun.Sub(*final.LastRun))

	// Timer re-armed for the next cycle at the configured interval.
	assert.Equal(t, []time.Duration{80 * time.Second}, clk.PendingDelays())
}

func TestFailedCycleBacksOffAtDoubleInterval(t *testing.T) {
	store := newFakeAgentStore()
	agent := store.add(&models.Agent{
		Name:            "Risk Scoring",
		Type:            models.AgentTypeRiskScoring,
		Status:          models.AgentStatusActive,
		IntervalSeconds: 30,
	})

	attempts := 0
	handler := handlerFunc(func(ctx context.Context, a *models.Agent) error {
		attempts++
		if attempts == 1 {
			return errors.New("upstream unavailable")
		}
		return nil
	})
	sched, clk, _ := newTestScheduler(t, store, handler)
	require.NoError(t, sched.Start(context.Background()))

	require.Equal(t, 1, clk.Fire())

	failed, err := store.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusError, failed.Status)
	assert.Equal(t, 0, failed.Progress)
	assert.Equal(t, []time.Duration{60 * time.Second}, clk.PendingDelays())

	// The error state does not block the next cycle; a clean run restores
	// the agent to active.
	require.Equal(t, 1, clk.Fire())
	recovered, err := store.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusActive, recovered.Status)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{30 * time.Second}, clk.PendingDelays())
}

func TestRepeatedFailuresNeverCompound(t *testing.T) {
	store := newFakeAgentStore()
	store.add(&models.Agent{
		Name:            "Alert Dispatch",
		Type:            models.AgentTypeAlerting,
		Status:          models.AgentStatusActive,
		IntervalSeconds: 45,
	})

	handler := handlerFunc(func(ctx context.Context, a *models.Agent) error {
		return errors.New("still broken")
	})
	sched, clk, _ := newTestScheduler(t, store, handler)
	require.NoError(t, sched.Start(context.Background()))

	for i := 0; i < 3; i++ {
		require.Equal(t, 1, clk.Fire())
		assert.Equal(t, []time.Duration{90 * time.Second}, clk.PendingDelays())
	}
}

func TestSetAgentStatusPauseCancelsTimer(t *testing.T) {
	store := newFakeAgentStore()
	agent := store.add(&models.Agent{
		Name:            "Chain Monitor",
		Type:            models.AgentTypeMonitor,
		Status:          models.AgentStatusActive,
		IntervalSeconds: 30,
	})

	sched, clk, _ := newTestScheduler(t, store, handlerFunc(func(ctx context.Context, a *models.Agent) error {
		return nil
	}))
	require.NoError(t, sched.Start(context.Background()))
	require.True(t, sched.TimerArmed(agent.ID))

	_, err := sched.SetAgentStatus(context.Background(), agent.ID, map[string]interface{}{
		"status": models.AgentStatusInactive,
	})
	require.NoError(t, err)

	assert.False(t, sched.TimerArmed(agent.ID))
	assert.Empty(t, clk.PendingDelays())
	assert.Equal(t, 0, clk.Fire())
}

func TestSetAgentStatusResumeArmsImmediately(t *testing.T) {
	store := newFakeAgentStore()
	agent := store.add(&models.Agent{
		Name:            "Chain Monitor",
		Type:            models.AgentTypeMonitor,
		Status:          models.AgentStatusInactive,
		IntervalSeconds: 30,
	})

	sched, clk, _ := newTestScheduler(t, store, handlerFunc(func(ctx context.Context, a *models.Agent) error {
		return nil
	}))
	require.NoError(t, sched.Start(context.Background()))
	require.False(t, sched.TimerArmed(agent.ID), "inactive agents are not scheduled at startup")

	_, err := sched.SetAgentStatus(context.Background(), agent.ID, map[string]interface{}{
		"status": models.AgentStatusActive,
	})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{0}, clk.PendingDelays())
	require.Equal(t, 1, clk.Fire())

	final, err := store.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusActive, final.Status)
}

func TestResumeWhileArmedKeepsSingleTimer(t *testing.T) {
	store := newFakeAgentStore()
	agent := store.add(&models.Agent{
		Name:            "Chain Monitor",
		Type:            models.AgentTypeMonitor,
		Status:          models.AgentStatusActive,
		IntervalSeconds: 30,
	})

	sched, clk, _ := newTestScheduler(t, store, handlerFunc(func(ctx context.Context, a *models.Agent) error {
		return nil
	}))
	require.NoError(t, sched.Start(context.Background()))

	// Re-activating an already scheduled agent must not arm a second timer.
	_, err := sched.SetAgentStatus(context.Background(), agent.ID, map[string]interface{}{
		"status": models.AgentStatusActive,
	})
	require.NoError(t, err)
	assert.Len(t, clk.PendingDelays(), 1)
}

func TestPauseDuringCycleWinsFinalStatus(t *testing.T) {
	store := newFakeAgentStore()
	agent := store.add(&models.Agent{
		Name:            "Chain Monitor",
		Type:            models.AgentTypeMonitor,
		Status:          models.AgentStatusActive,
		IntervalSeconds: 30,
	})

	var sched *Scheduler
	handler := handlerFunc(func(ctx context.Context, a *models.Agent) error {
		_, err := sched.SetAgentStatus(ctx, a.ID, map[string]interface{}{
			"status": models.AgentStatusInactive,
		})
		return err
	})

	var clk *clock.Fake
	sched, clk, _ = newTestScheduler(t, store, handler)
	require.NoError(t, sched.Start(context.Background()))
	require.Equal(t, 1, clk.Fire())

	final, err := store.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusInactive, final.Status)
	assert.Equal(t, 0, final.Progress)
	assert.Empty(t, clk.PendingDelays(), "paused agents are not re-armed")
}

func TestStartKeepsFutureNextRunDelay(t *testing.T) {
	store := newFakeAgentStore()
	clk := clock.NewFake(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	next := clk.Now().Add(12 * time.Second)
	store.add(&models.Agent{
		Name:            "Chain Monitor",
		Type:            models.AgentTypeMonitor,
		Status:          models.AgentStatusActive,
		IntervalSeconds: 30,
		NextRun:         &next,
	})

	rec := &recorderBroadcaster{}
	collector := metrics.NewCollector(prometheus.NewRegistry())
	handler := handlerFunc(func(ctx context.Context, a *models.Agent) error { return nil })
	sched := NewScheduler(store, &HandlerSet{monitor: handler}, rec, clk, collector, zap.NewNop())
	require.NoError(t, sched.Start(context.Background()))

	assert.Equal(t, []time.Duration{12 * time.Second}, clk.PendingDelays())
}

func TestCycleBroadcastsAgentUpdates(t *testing.T) {
	store := newFakeAgentStore()
	store.add(&models.Agent{
		Name:            "Chain Monitor",
		Type:            models.AgentTypeMonitor,
		Status:          models.AgentStatusActive,
		IntervalSeconds: 30,
	})

	sched, clk, rec := newTestScheduler(t, store, handlerFunc(func(ctx context.Context, a *models.Agent) error {
		return nil
	}))
	require.NoError(t, sched.Start(context.Background()))
	require.Equal(t, 1, clk.Fire())

	// Start update, one per ladder rung, and the final reset.
	assert.Equal(t, 1+len(ProgressLadder)+1, rec.count())
}

func TestBootstrapSeedsOneAgentPerType(t *testing.T) {
	store := newFakeAgentStore()
	intervals := map[string]int{
		"monitor":      30,
		"risk_scoring": 15,
	}

	require.NoError(t, Bootstrap(context.Background(), store, intervals))

	agents, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, len(models.AgentTypes))

	byType := make(map[models.AgentType]*models.Agent)
	for _, agent := range agents {
		byType[agent.Type] = agent
	}
	assert.Equal(t, 30, byType[models.AgentTypeMonitor].IntervalSeconds)
	assert.Equal(t, 15, byType[models.AgentTypeRiskScoring].IntervalSeconds)
	// Types without a configured interval get the fallback.
	assert.Equal(t, 60, byType[models.AgentTypeReporting].IntervalSeconds)
	assert.Equal(t, models.AgentStatusActive, byType[models.AgentTypeAlerting].Status)

	// A second bootstrap leaves the existing agents untouched.
	require.NoError(t, Bootstrap(context.Background(), store, intervals))
	again, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, again, len(agents))
}
