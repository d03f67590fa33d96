package server

import (
	"context"
	"fmt"
	"time"

	"github.com/aweller/gamewarden/internal/domain"
)

// monitor is the idle-detection loop. It runs only while a workload is
// active, samples the player count on each tick and shuts the instance down
// after enough consecutive empty samples. Cancellation is cooperative: it is
// observed between ticks, never mid-tick.
type monitor struct {
	svc      *Service
	workload domain.Workload
}

// startMonitor supervises a fresh monitor goroutine for the given workload,
// replacing any previous one. Called with the gate held.
func (s *Service) startMonitor(workload domain.Workload) {
	ctx := s.swapMonitor()
	m := &monitor{svc: s, workload: workload}
	go m.watch(ctx)
}

// swapMonitor cancels the previous monitor, if any, and returns the context
// for the next one, parented to the process lifetime.
func (s *Service) swapMonitor() context.Context {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.monitorCancel != nil {
		s.monitorCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.monitorCancel = cancel
	return ctx
}

func (s *Service) cancelMonitor() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.monitorCancel != nil {
		s.monitorCancel()
		s.monitorCancel = nil
	}
}

func (m *monitor) watch(ctx context.Context) {
	s := m.svc
	s.logger.Info("idle monitor started", "workload", m.workload.Name, "interval", s.idle.CheckInterval, "threshold", s.idle.ShutdownThreshold)

	ticker := time.NewTicker(s.idle.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("idle monitor stopped", "workload", m.workload.Name)
			return
		case <-ticker.C:
			if m.tick(ctx) {
				return
			}
		}
	}
}

// tick performs one idle check and reports whether the loop should
// terminate.
func (m *monitor) tick(ctx context.Context) (done bool) {
	s := m.svc

	if s.maintenanceOn() {
		return false
	}
	// A user-driven operation holds the gate; skip this sample rather than
	// queue behind it.
	if !s.gate.TryLock() {
		return false
	}
	defer s.gate.Unlock()

	desc, err := s.instances.Describe(ctx)
	if err != nil {
		s.logger.Error("idle check could not describe the instance", "err", err)
		return false
	}
	if desc.State != domain.StateRunning {
		// The monitor should not have been running at all; local and remote
		// state have drifted.
		s.logger.Error("idle monitor found the instance in an unexpected state", "state", desc.State)
		s.notifier.Warn(ctx, fmt.Sprintf("The idle monitor found the instance %s while %s was recorded as active.", desc.State, m.workload.Name))
		return true
	}

	if players := m.playerCount(ctx); players > 0 {
		s.resetStreak()
		return false
	}

	streak := s.bumpStreak()
	if streak < s.idle.ShutdownThreshold {
		if streak == 1 {
			s.notifier.Notify(ctx, fmt.Sprintf("No one is playing %s right now. The instance will shut itself down if it stays empty.", m.workload.Name))
		}
		return false
	}

	// Past the threshold every empty tick attempts the shutdown again, so a
	// transient stop failure cannot leave the instance running unwatched.
	if streak == s.idle.ShutdownThreshold {
		s.notifier.Notify(ctx, fmt.Sprintf("%s has been empty for a while, shutting the instance down.", m.workload.Name))
	}
	if _, err := s.stopLocked(ctx); err != nil {
		s.logger.Error("idle shutdown failed, retrying on the next check", "workload", m.workload.Name, "err", err)
		return false
	}
	return true
}

// playerCount samples the workload's occupancy. A broken query must not
// block an idle shutdown indefinitely, so any failure counts as zero.
func (m *monitor) playerCount(ctx context.Context) int {
	invocation, err := m.svc.runner.Run(ctx, m.workload.PlayerCountCommands)
	if err != nil {
		m.svc.logger.Warn("player count query failed, treating as empty", "workload", m.workload.Name, "err", err)
		return 0
	}
	return parsePlayerCount(invocation)
}
