package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/realtime"
)

// Broadcaster periodically pushes the dashboard aggregate to connected
// websocket clients.
type Broadcaster struct {
	service *Service
	hub     *realtime.Hub
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewBroadcaster creates a stats broadcaster
func NewBroadcaster(service *Service, hub *realtime.Hub, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		service: service,
		hub:     hub,
		cron:    cron.New(),
		logger:  logger.Named("stats-broadcaster"),
	}
}

// Start schedules the periodic broadcast. The interval must be at least
// one second.
func (b *Broadcaster) Start(interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("broadcast interval too short: %s", interval)
	}
	schedule := fmt.Sprintf("@every %s", interval)
	if _, err := b.cron.AddFunc(schedule, b.broadcast); err != nil {
		return fmt.Errorf("failed to schedule stats broadcast: %w", err)
	}
	b.cron.Start()
	b.logger.Info("stats broadcaster started", zap.Duration("interval", interval))
	return nil
}

// Stop halts the broadcast schedule and waits for any in-flight run.
func (b *Broadcaster) Stop() {
	<-b.cron.Stop().Done()
}

func (b *Broadcaster) broadcast() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dashboard, err := b.service.Dashboard(ctx)
	if err != nil {
		b.logger.Error("failed to compute dashboard stats", zap.Error(err))
		return
	}
	b.hub.Broadcast(realtime.EventStatsUpdate, dashboard)
}
