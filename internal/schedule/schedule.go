// Package schedule runs scan cycles on a fixed interval.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
	"github.com/ishaqmohammed8765-png/flipscan/internal/scan"
)

// Runner executes one scan cycle. *scan.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context) (*scan.Summary, error)
}

// Manager triggers scan cycles on the configured interval. A cycle
// still in flight when the next tick fires is never overlapped; the
// tick is skipped instead.
type Manager struct {
	runner   Runner
	interval time.Duration
	log      logger.Interface

	cron *cron.Cron

	mu          sync.Mutex
	lastSummary *scan.Summary
}

// NewManager creates a scheduler for the given interval.
func NewManager(runner Runner, interval time.Duration, log logger.Interface) *Manager {
	m := &Manager{
		runner:   runner,
		interval: interval,
		log:      log.WithComponent("schedule"),
	}
	m.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	return m
}

// Start runs one cycle immediately, then on every interval tick until
// ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("scheduler started", "interval", m.interval.String())

	m.runCycle(ctx)
	m.cron.Schedule(cron.Every(m.interval), cron.FuncJob(func() {
		m.runCycle(ctx)
	}))
	m.cron.Start()

	<-ctx.Done()
	m.Stop()
	return nil
}

// Stop halts future ticks and waits for a running cycle to finish.
func (m *Manager) Stop() {
	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	m.log.Info("scheduler stopped")
}

// LastSummary returns the most recent completed cycle, or nil before
// the first one finishes.
func (m *Manager) LastSummary() *scan.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSummary
}

func (m *Manager) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	summary, err := m.runner.Run(ctx)
	if err != nil {
		m.log.Error("scan cycle failed", "error", err)
		return
	}
	m.mu.Lock()
	m.lastSummary = summary
	m.mu.Unlock()
}
