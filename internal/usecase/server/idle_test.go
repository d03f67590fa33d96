package server

import (
	"context"
	"testing"
	"time"

	"github.com/aweller/gamewarden/internal/domain"
)

func players(count string) commandResult {
	return commandResult{invocation: domain.CommandInvocation{Status: domain.CommandSuccess, Output: count}}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestIdleMonitorShutsDownEmptyWorkload(t *testing.T) {
	controller := &fakeController{state: domain.StateStopped}
	runner := &fakeRunner{}
	runner.setQueue(alpha.PlayerCountCommands, players("0"))
	svc, notifier := newTestService(t, controller, runner, IdleSettings{
		CheckInterval:     10 * time.Millisecond,
		ShutdownThreshold: 3,
	})

	if _, err := svc.Start(context.Background(), "alpha"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !waitUntil(t, 2*time.Second, func() bool {
		controller.mu.Lock()
		defer controller.mu.Unlock()
		return controller.stopCalls == 1
	}) {
		t.Fatal("idle monitor never stopped the instance")
	}

	if svc.active() != "" {
		t.Fatalf("active workload not cleared: %q", svc.active())
	}
	if runner.ranCommands(alpha.StopCommands) != 1 {
		t.Fatal("workload stop commands did not run")
	}

	// The monitor terminated with the shutdown; nothing further may happen.
	time.Sleep(100 * time.Millisecond)
	controller.mu.Lock()
	stops := controller.stopCalls
	controller.mu.Unlock()
	if stops != 1 {
		t.Fatalf("expected exactly one stop sequence, got %d", stops)
	}

	notifier.mu.Lock()
	notices := len(notifier.notices)
	notifier.mu.Unlock()
	if notices < 2 {
		t.Fatalf("expected an idle reminder and a shutdown notice, got %d notifications", notices)
	}
}

func TestIdleMonitorResetsStreakOnOccupancy(t *testing.T) {
	controller := &fakeController{state: domain.StateStopped}
	runner := &fakeRunner{}
	// Two empty samples never accumulate: a player shows up in between.
	runner.setQueue(alpha.PlayerCountCommands,
		players("0"), players("0"), players("2"),
		players("0"), players("0"), players("1"),
	)
	svc, _ := newTestService(t, controller, runner, IdleSettings{
		CheckInterval:     10 * time.Millisecond,
		ShutdownThreshold: 3,
	})

	if _, err := svc.Start(context.Background(), "alpha"); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitUntil(t, 150*time.Millisecond, func() bool { return false })

	controller.mu.Lock()
	stops := controller.stopCalls
	controller.mu.Unlock()
	if stops != 0 {
		t.Fatalf("no shutdown expected, got %d stop calls", stops)
	}
	if svc.active() != "alpha" {
		t.Fatalf("active workload = %q", svc.active())
	}
}

func TestIdleMonitorTreatsBrokenQueryAsEmpty(t *testing.T) {
	controller := &fakeController{state: domain.StateStopped}
	runner := &fakeRunner{}
	runner.setQueue(alpha.PlayerCountCommands, commandResult{err: domain.ErrCommandExceededWaitTime{Attempts: 40}})
	svc, _ := newTestService(t, controller, runner, IdleSettings{
		CheckInterval:     10 * time.Millisecond,
		ShutdownThreshold: 2,
	})

	if _, err := svc.Start(context.Background(), "alpha"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !waitUntil(t, 2*time.Second, func() bool {
		controller.mu.Lock()
		defer controller.mu.Unlock()
		return controller.stopCalls == 1
	}) {
		t.Fatal("broken player query must still lead to an idle shutdown")
	}
}

func TestIdleMonitorRetriesFailedShutdown(t *testing.T) {
	controller := &fakeController{state: domain.StateStopped, stopFailures: 1}
	runner := &fakeRunner{}
	runner.setQueue(alpha.PlayerCountCommands, players("0"))
	svc, _ := newTestService(t, controller, runner, IdleSettings{
		CheckInterval:     10 * time.Millisecond,
		ShutdownThreshold: 2,
	})

	if _, err := svc.Start(context.Background(), "alpha"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !waitUntil(t, 2*time.Second, func() bool {
		controller.mu.Lock()
		defer controller.mu.Unlock()
		return controller.stopCalls >= 2 && controller.state == domain.StateStopped
	}) {
		t.Fatal("monitor never retried the shutdown after the first stop failed")
	}

	if svc.active() != "" {
		t.Fatalf("active workload not cleared: %q", svc.active())
	}
}

func TestIdleMonitorTerminatesOnStateDrift(t *testing.T) {
	controller := &fakeController{state: domain.StateStopped}
	runner := &fakeRunner{}
	runner.setQueue(alpha.PlayerCountCommands, players("0"))
	svc, notifier := newTestService(t, controller, runner, IdleSettings{
		CheckInterval:     10 * time.Millisecond,
		ShutdownThreshold: 100,
	})

	if _, err := svc.Start(context.Background(), "alpha"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Someone stopped the instance behind the orchestrator's back.
	controller.setState(domain.StateStopped)

	if !waitUntil(t, 2*time.Second, func() bool {
		return notifier.warningCount() > 0
	}) {
		t.Fatal("expected a drift warning from the idle monitor")
	}

	controller.mu.Lock()
	stops := controller.stopCalls
	controller.mu.Unlock()
	if stops != 0 {
		t.Fatal("drift must not trigger a stop sequence")
	}
}

func TestIdleMonitorPausedDuringMaintenance(t *testing.T) {
	controller := &fakeController{state: domain.StateStopped}
	runner := &fakeRunner{}
	runner.setQueue(alpha.PlayerCountCommands, players("0"))
	svc, _ := newTestService(t, controller, runner, IdleSettings{
		CheckInterval:     10 * time.Millisecond,
		ShutdownThreshold: 2,
	})

	if _, err := svc.Start(context.Background(), "alpha"); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.SetMaintenance(true)

	waitUntil(t, 100*time.Millisecond, func() bool { return false })

	controller.mu.Lock()
	stops := controller.stopCalls
	controller.mu.Unlock()
	if stops != 0 {
		t.Fatal("maintenance must pause idle shutdowns")
	}
}
