// Package server coordinates every operation that affects the remote
// instance. All such operations contend for one gate; a request arriving
// while the gate is held fails fast instead of queueing, so no operation
// ever acts on a descriptor another one is about to supersede.
package server

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aweller/gamewarden/internal/domain"
	"github.com/aweller/gamewarden/internal/impls"
)

// IdleSettings tunes the idle monitor supervised by the service.
type IdleSettings struct {
	// CheckInterval is the time between occupancy samples.
	CheckInterval time.Duration

	// ShutdownThreshold is the number of consecutive empty samples after
	// which the instance is stopped autonomously.
	ShutdownThreshold int
}

type Service struct {
	ctx       context.Context
	instances impls.InstanceController
	runner    impls.CommandRunner
	notifier  impls.Notifier
	workloads impls.WorkloadTable
	idle      IdleSettings
	logger    *slog.Logger

	// gate serializes instance-affecting operations. Acquired with TryLock
	// only; contention is reported to the caller, never queued.
	gate sync.Mutex

	// stateMu guards the fields below. It is never held across an API call.
	stateMu        sync.Mutex
	activeWorkload string
	maintenance    bool
	idleStreak     int
	monitorCancel  context.CancelFunc
}

// NewService builds the orchestrator. ctx is the process-lifetime context;
// the idle monitor goroutine is parented to it, not to any single request.
func NewService(ctx context.Context, instances impls.InstanceController, runner impls.CommandRunner, notifier impls.Notifier, workloads impls.WorkloadTable, idle IdleSettings, logger *slog.Logger) *Service {
	return &Service{
		ctx:       ctx,
		instances: instances,
		runner:    runner,
		notifier:  notifier,
		workloads: workloads,
		idle:      idle,
		logger:    logger,
	}
}

// StartReport is the outcome of a successful Start or Change. Degraded means
// the workload came up but the readiness probe never saw it respond.
type StartReport struct {
	Description domain.InstanceDescription
	Workload    domain.Workload
	Degraded    bool
}

// StatusReport is a consistent snapshot of instance and workload state.
type StatusReport struct {
	Description domain.InstanceDescription
	Workload    string
	Port        int
	PlayerCount int
	Ping        string
	Maintenance bool
}

// Start brings the instance up and starts the named workload on it.
func (s *Service) Start(ctx context.Context, name string) (StartReport, error) {
	if err := s.checkNoMaintenance(); err != nil {
		return StartReport{}, err
	}
	workload, ok := s.workloads.Workload(name)
	if !ok {
		return StartReport{}, domain.ErrUnknownWorkload{Name: name}
	}

	if !s.gate.TryLock() {
		return StartReport{}, domain.ErrOperationInProgress{}
	}
	defer s.gate.Unlock()

	desc, err := s.instances.Describe(ctx)
	if err != nil {
		return StartReport{}, s.fail(ctx, "describe", nil, err)
	}
	if desc.State == domain.StateRunning {
		if s.active() == "" {
			s.warnRunningBare(ctx)
		}
		return StartReport{}, domain.ErrAlreadyInTargetState{State: desc.State}
	}
	if desc.State != domain.StateStopped {
		return StartReport{}, domain.ErrUnexpectedInstanceState{State: desc.State}
	}

	s.logger.Info("starting instance", "workload", workload.Name)
	desc, err = s.instances.Start(ctx)
	if err != nil {
		return StartReport{}, s.fail(ctx, "start instance", nil, err)
	}

	if _, err := s.runner.Run(ctx, workload.StartCommands); err != nil {
		return StartReport{}, s.fail(ctx, "start workload", workload.StartCommands, err)
	}

	s.setActive(workload.Name)
	s.resetStreak()
	s.startMonitor(workload)

	report := StartReport{Description: desc, Workload: workload}
	report.Degraded = !s.probeReady(ctx, workload)
	return report, nil
}

// Stop shuts the workload down (best effort) and stops the instance.
func (s *Service) Stop(ctx context.Context) (domain.InstanceDescription, error) {
	if err := s.checkNoMaintenance(); err != nil {
		return domain.InstanceDescription{}, err
	}

	if !s.gate.TryLock() {
		return domain.InstanceDescription{}, domain.ErrOperationInProgress{}
	}
	defer s.gate.Unlock()

	desc, err := s.instances.Describe(ctx)
	if err != nil {
		return domain.InstanceDescription{}, s.fail(ctx, "describe", nil, err)
	}
	if desc.State == domain.StateStopped {
		return domain.InstanceDescription{}, domain.ErrAlreadyInTargetState{State: desc.State}
	}
	if desc.State != domain.StateRunning {
		return domain.InstanceDescription{}, domain.ErrUnexpectedInstanceState{State: desc.State}
	}
	if s.active() == "" {
		s.warnRunningBare(ctx)
	}

	return s.stopLocked(ctx)
}

// stopLocked runs the full stop sequence. Callers hold the gate. The
// workload's stop commands are best effort: the instance goes down whether
// or not they succeed. Monitor and workload state are only cleared once the
// instance has actually stopped, so a failed stop leaves the idle monitor
// armed.
func (s *Service) stopLocked(ctx context.Context) (domain.InstanceDescription, error) {
	if name := s.active(); name != "" {
		if workload, ok := s.workloads.Workload(name); ok {
			invocation, err := s.runner.Run(ctx, workload.StopCommands)
			if err != nil {
				s.logger.Error("stop commands failed, stopping instance anyway", "workload", name, "commands", workload.StopCommands, "err", err)
			} else if invocation.Status != domain.CommandSuccess {
				s.logger.Warn("stop commands did not report success", "workload", name, "status", invocation.Status, "stderr", invocation.ErrorOutput)
			}
		}
	}

	desc, err := s.instances.Stop(ctx)
	if err != nil {
		return domain.InstanceDescription{}, s.fail(ctx, "stop instance", nil, err)
	}

	s.cancelMonitor()
	s.setActive("")
	s.logger.Info("instance stopped")
	return desc, nil
}

// Change swaps the running workload without touching the instance power
// state.
func (s *Service) Change(ctx context.Context, name string) (StartReport, error) {
	if err := s.checkNoMaintenance(); err != nil {
		return StartReport{}, err
	}
	workload, ok := s.workloads.Workload(name)
	if !ok {
		return StartReport{}, domain.ErrUnknownWorkload{Name: name}
	}
	if s.active() == name {
		return StartReport{}, domain.ErrWorkloadAlreadyActive{Name: name}
	}

	if !s.gate.TryLock() {
		return StartReport{}, domain.ErrOperationInProgress{}
	}
	defer s.gate.Unlock()

	desc, err := s.instances.Describe(ctx)
	if err != nil {
		return StartReport{}, s.fail(ctx, "describe", nil, err)
	}
	if desc.State == domain.StateStopped {
		return StartReport{}, domain.ErrInstanceNotRunning{}
	}
	if desc.State != domain.StateRunning {
		return StartReport{}, domain.ErrUnexpectedInstanceState{State: desc.State}
	}
	if s.active() == "" {
		s.warnRunningBare(ctx)
	}

	s.cancelMonitor()

	if current := s.active(); current != "" {
		if currentWorkload, ok := s.workloads.Workload(current); ok {
			if _, err := s.runner.Run(ctx, currentWorkload.StopCommands); err != nil {
				return StartReport{}, s.fail(ctx, "stop workload", currentWorkload.StopCommands, err)
			}
		}
	}

	if _, err := s.runner.Run(ctx, workload.StartCommands); err != nil {
		return StartReport{}, s.fail(ctx, "start workload", workload.StartCommands, err)
	}

	s.setActive(workload.Name)
	s.resetStreak()
	s.startMonitor(workload)

	report := StartReport{Description: desc, Workload: workload}
	report.Degraded = !s.probeReady(ctx, workload)
	return report, nil
}

// Status reports a consistent snapshot. It mutates nothing but still takes
// the gate so the descriptor and the recorded workload line up. Privileged
// callers bypass the maintenance check and additionally get the ping output.
func (s *Service) Status(ctx context.Context, privileged bool) (StatusReport, error) {
	if !privileged {
		if err := s.checkNoMaintenance(); err != nil {
			return StatusReport{}, err
		}
	}

	if !s.gate.TryLock() {
		return StatusReport{}, domain.ErrOperationInProgress{}
	}
	defer s.gate.Unlock()

	desc, err := s.instances.Describe(ctx)
	if err != nil {
		return StatusReport{}, s.fail(ctx, "describe", nil, err)
	}

	report := StatusReport{
		Description: desc,
		Workload:    s.active(),
		Maintenance: s.maintenanceOn(),
	}
	if report.Workload == "" {
		return report, nil
	}

	workload, ok := s.workloads.Workload(report.Workload)
	if !ok {
		return report, nil
	}
	report.Port = workload.Port

	invocation, err := s.runner.Run(ctx, workload.PlayerCountCommands)
	if err != nil {
		return StatusReport{}, s.fail(ctx, "query player count", workload.PlayerCountCommands, err)
	}
	report.PlayerCount = parsePlayerCount(invocation)

	if privileged {
		invocation, err := s.runner.Run(ctx, workload.PingCommands)
		if err != nil {
			return StatusReport{}, s.fail(ctx, "ping workload", workload.PingCommands, err)
		}
		if invocation.Status == domain.CommandSuccess {
			report.Ping = invocation.Output
		} else {
			report.Ping = "connection failed"
		}
	}
	return report, nil
}

// SetMaintenance toggles maintenance mode. Setting the current value again
// is a no-op, reported through the return value rather than an error.
func (s *Service) SetMaintenance(on bool) (changed bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.maintenance == on {
		return false
	}
	s.maintenance = on
	return true
}

// probeReady runs the workload's ping commands until they succeed. The probe
// is best effort: exhaustion degrades the report, it never rolls the start
// back.
func (s *Service) probeReady(ctx context.Context, workload domain.Workload) bool {
	if len(workload.PingCommands) == 0 {
		return true
	}
	if _, err := s.runner.RunUntilSuccess(ctx, workload.PingCommands); err != nil {
		s.logger.Error("readiness probe failed", "workload", workload.Name, "commands", workload.PingCommands, "err", err)
		return false
	}
	return true
}

func parsePlayerCount(invocation domain.CommandInvocation) int {
	if invocation.Status != domain.CommandSuccess {
		return 0
	}
	count, err := strconv.Atoi(invocation.Output)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

// fail logs an unexpected failure with its full command context and hands
// the error back unchanged for the caller to surface.
func (s *Service) fail(_ context.Context, op string, commands []string, err error) error {
	s.logger.Error("instance operation failed", "op", op, "commands", commands, "err", err)
	return err
}

func (s *Service) warnRunningBare(ctx context.Context) {
	s.logger.Warn("instance is running, but no workload is recorded as active")
	s.notifier.Warn(ctx, "The instance is running, but no workload is recorded as active on it.")
}

func (s *Service) checkNoMaintenance() error {
	if s.maintenanceOn() {
		return domain.ErrMaintenanceInProgress{}
	}
	return nil
}

func (s *Service) maintenanceOn() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.maintenance
}

func (s *Service) active() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.activeWorkload
}

func (s *Service) setActive(name string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.activeWorkload = name
}

func (s *Service) resetStreak() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.idleStreak = 0
}

func (s *Service) bumpStreak() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.idleStreak++
	return s.idleStreak
}
