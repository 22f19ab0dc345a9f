package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/clock"
	"github.com/aegisshield/chain-monitor/internal/metrics"
	"github.com/aegisshield/chain-monitor/internal/models"
	"github.com/aegisshield/chain-monitor/internal/realtime"
)

// ProgressLadder is the fixed sequence of progress percentages an agent
// cycle passes through before returning to zero.
var ProgressLadder = []int{10, 25, 40, 55, 70, 85, 95, 100}

// DispatchProgress is the ladder rung at which the type-specific handler
// runs, exactly once per cycle.
const DispatchProgress = 55

// Scheduler owns one timer per agent and drives every active agent through
// a repeating progress cycle. At most one armed timer and one in-flight
// execution exist per agent; the timer is only re-armed after the previous
// cycle fully completed or failed.
type Scheduler struct {
	store       AgentStore
	handlers    *HandlerSet
	broadcaster Broadcaster
	clk         clock.Clock
	collector   *metrics.Collector
	logger      *zap.Logger

	mu      sync.Mutex
	timers  map[uuid.UUID]clock.Timer
	running map[uuid.UUID]bool
	paused  map[uuid.UUID]bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. Call Start to arm timers.
func NewScheduler(
	store AgentStore,
	handlers *HandlerSet,
	broadcaster Broadcaster,
	clk clock.Clock,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		store:       store,
		handlers:    handlers,
		broadcaster: broadcaster,
		clk:         clk,
		collector:   collector,
		logger:      logger.Named("scheduler"),
		timers:      make(map[uuid.UUID]clock.Timer),
		running:     make(map[uuid.UUID]bool),
		paused:      make(map[uuid.UUID]bool),
	}
}

// Start arms a timer for every non-inactive agent. Agents whose next run is
// in the future keep their remaining delay; everything else fires
// immediately, which also recovers agents left in processing or error state
// by a previous process.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	agents, err := s.store.List(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	scheduled := 0
	for _, agent := range agents {
		if agent.Status == models.AgentStatusInactive {
			s.paused[agent.ID] = true
			continue
		}
		var delay time.Duration
		if agent.NextRun != nil && agent.NextRun.After(now) {
			delay = agent.NextRun.Sub(now)
		}
		s.armLocked(agent.ID, delay)
		scheduled++
	}

	s.logger.Info("agent scheduler started",
		zap.Int("agents", len(agents)),
		zap.Int("scheduled", scheduled))
	return nil
}

// Stop cancels all armed timers and waits for in-flight cycles to abort.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("agent scheduler stopped")
}

// SetAgentStatus applies a partial update to an agent. This is the only
// externally triggered transition: an agent turned active is scheduled
// immediately if no timer is armed; an agent turned inactive has its
// pending timer cancelled.
func (s *Scheduler) SetAgentStatus(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*models.Agent, error) {
	agent, err := s.store.Update(ctx, id, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to update agent %s: %w", id, err)
	}
	s.broadcaster.Broadcast(realtime.EventAgentUpdate, agent)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch agent.Status {
	case models.AgentStatusActive:
		delete(s.paused, id)
		if _, armed := s.timers[id]; !armed && !s.running[id] && !s.stopped {
			s.armLocked(id, 0)
		}
	case models.AgentStatusInactive:
		s.paused[id] = true
		if t, armed := s.timers[id]; armed {
			t.Stop()
			delete(s.timers, id)
		}
	}
	return agent, nil
}

// armLocked arms the timer for an agent. Caller holds s.mu; the
// at-most-one-timer invariant is enforced here.
func (s *Scheduler) armLocked(id uuid.UUID, delay time.Duration) {
	if _, armed := s.timers[id]; armed {
		return
	}
	s.timers[id] = s.clk.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()
		s.runCycle(id)
	})
}

func (s *Scheduler) runCycle(id uuid.UUID) {
	ctx := s.ctx

	s.mu.Lock()
	delete(s.timers, id)
	if s.running[id] {
		s.mu.Unlock()
		return
	}
	s.running[id] = true
	s.mu.Unlock()

	finish := func(rearm bool, delay time.Duration) {
		s.mu.Lock()
		delete(s.running, id)
		if rearm && !s.stopped && !s.paused[id] {
			s.armLocked(id, delay)
		}
		s.mu.Unlock()
	}

	agent, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error("failed to load agent for cycle", zap.String("agent_id", id.String()), zap.Error(err))
		finish(false, 0)
		return
	}
	if agent.Status == models.AgentStatusInactive {
		finish(false, 0)
		return
	}

	interval := time.Duration(agent.IntervalSeconds) * time.Second

	err = s.executeCycle(ctx, agent, interval)
	switch {
	case err == nil:
		s.collector.RecordCycle(string(agent.Type), "success")
		finish(true, interval)
	case errors.Is(err, context.Canceled):
		finish(false, 0)
	default:
		s.logger.Error("agent cycle failed",
			zap.String("agent_type", string(agent.Type)),
			zap.Error(err))
		s.collector.RecordCycle(string(agent.Type), "error")

		updated, uerr := s.store.Update(ctx, id, map[string]interface{}{
			"status":   models.AgentStatusError,
			"progress": 0,
		})
		if uerr != nil {
			s.logger.Error("failed to record agent error state",
				zap.String("agent_id", id.String()), zap.Error(uerr))
		} else {
			s.broadcaster.Broadcast(realtime.EventAgentUpdate, updated)
		}

		// The backoff factor applies to the base interval each time, so the
		// delay after a failed cycle is always exactly twice the configured
		// interval and never compounds.
		finish(true, 2*interval)
	}
}

// executeCycle walks one agent through the full progress ladder, dispatching
// the type-specific handler at the dispatch rung.
func (s *Scheduler) executeCycle(ctx context.Context, agent *models.Agent, interval time.Duration) error {
	now := s.clk.Now()
	updated, err := s.store.Update(ctx, agent.ID, map[string]interface{}{
		"status":   models.AgentStatusProcessing,
		"progress": 0,
		"last_run": now,
		"next_run": now.Add(interval),
	})
	if err != nil {
		return fmt.Errorf("failed to start cycle: %w", err)
	}
	s.broadcaster.Broadcast(realtime.EventAgentUpdate, updated)

	step := interval / time.Duration(len(ProgressLadder))
	for _, rung := range ProgressLadder {
		if err := s.wait(ctx, step); err != nil {
			return err
		}

		updated, err = s.store.Update(ctx, agent.ID, map[string]interface{}{"progress": rung})
		if err != nil {
			return fmt.Errorf("failed to write progress %d: %w", rung, err)
		}
		s.broadcaster.Broadcast(realtime.EventAgentUpdate, updated)

		if rung == DispatchProgress {
			handler, err := s.handlers.ForType(agent.Type)
			if err != nil {
				return err
			}
			start := s.clk.Now()
			if err := handler.Execute(ctx, updated); err != nil {
				return fmt.Errorf("%s handler: %w", agent.Type, err)
			}
			s.collector.ObserveHandler(string(agent.Type), s.clk.Now().Sub(start))
		}
	}

	// A pause requested mid-cycle wins over the normal return to active.
	status := models.AgentStatusActive
	if s.isPaused(agent.ID) {
		status = models.AgentStatusInactive
	}
	updated, err = s.store.Update(ctx, agent.ID, map[string]interface{}{
		"status":   status,
		"progress": 0,
	})
	if err != nil {
		return fmt.Errorf("failed to finish cycle: %w", err)
	}
	s.broadcaster.Broadcast(realtime.EventAgentUpdate, updated)
	return nil
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clk.After(d):
		return nil
	}
}

func (s *Scheduler) isPaused(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused[id]
}

// TimerArmed reports whether a timer is currently armed for the agent.
func (s *Scheduler) TimerArmed(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, armed := s.timers[id]
	return armed
}

var bootstrapAgents = []struct {
	Name   string
	Type   models.AgentType
	Config models.JSON
}{
	{"Chain Monitor", models.AgentTypeMonitor, models.JSON{}},
	{"Behavior Analysis", models.AgentTypeBehaviorAnalysis, models.JSON{"lookbackHours": 24}},
	{"Risk Scoring", models.AgentTypeRiskScoring, models.JSON{}},
	{"Alert Dispatch", models.AgentTypeAlerting, models.JSON{"severityThreshold": "high"}},
	{"Report Generation", models.AgentTypeReporting, models.JSON{"format": "pdf"}},
}

// Bootstrap idempotently seeds the five fixed agents, one per type.
// Existing agents are left untouched.
func Bootstrap(ctx context.Context, store AgentStore, intervals map[string]int) error {
	for _, seed := range bootstrapAgents {
		existing, err := store.FindByType(ctx, seed.Type)
		if err != nil {
			return fmt.Errorf("failed to look up %s agent: %w", seed.Type, err)
		}
		if existing != nil {
			continue
		}

		interval := intervals[string(seed.Type)]
		if interval <= 0 {
			interval = 60
		}
		agent := &models.Agent{
			Name:            seed.Name,
			Type:            seed.Type,
			Status:          models.AgentStatusActive,
			IntervalSeconds: interval,
			Config:          seed.Config,
		}
		if err := store.Create(ctx, agent); err != nil {
			return fmt.Errorf("failed to seed %s agent: %w", seed.Type, err)
		}
	}
	return nil
}
