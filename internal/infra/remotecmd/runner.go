package remotecmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/aweller/gamewarden/internal/domain"
)

// API is the slice of the execution service the Runner needs. *Client
// satisfies it; tests substitute scripted fakes.
type API interface {
	Send(ctx context.Context, commands []string) (string, error)
	Invocation(ctx context.Context, commandID string, commands []string) (domain.CommandInvocation, error)
}

// Policy carries the attempt budgets and delays of the three retry tiers.
// Send-phase and poll-phase failures are semantically different (instance
// availability vs record propagation lag), so each gets its own budget.
type Policy struct {
	SendAttempts int
	SendDelay    time.Duration
	PollAttempts int
	PollDelay    time.Duration
	RunAttempts  int
	RunDelay     time.Duration
}

// DefaultPolicy matches the stock tuning of the execution service.
func DefaultPolicy() Policy {
	return Policy{
		SendAttempts: 20,
		SendDelay:    5 * time.Second,
		PollAttempts: 40,
		PollDelay:    time.Second,
		RunAttempts:  40,
		RunDelay:     15 * time.Second,
	}
}

type Runner struct {
	api    API
	policy Policy
	logger *slog.Logger
}

func NewRunner(api API, policy Policy, logger *slog.Logger) *Runner {
	return &Runner{api: api, policy: policy, logger: logger}
}

// Run submits commands and waits for the invocation to finish.
//
// The send is retried on CodeInvalidInstance (the instance may still be
// booting) up to the send budget; any other error is fatal immediately. Once
// a command id exists, the invocation is polled on the poll budget, retrying
// CodeInvocationMissing while the record propagates, and returns as soon as
// the status leaves the in-flight set, whatever that status is.
func (r *Runner) Run(ctx context.Context, commands []string) (domain.CommandInvocation, error) {
	commandID, err := r.send(ctx, commands)
	if err != nil {
		return domain.CommandInvocation{}, err
	}
	return r.await(ctx, commandID, commands)
}

func (r *Runner) send(ctx context.Context, commands []string) (string, error) {
	attempts := 0
	for {
		attempts++
		commandID, err := r.api.Send(ctx, commands)
		if err == nil {
			return commandID, nil
		}
		if !HasCode(err, CodeInvalidInstance) {
			return "", err
		}
		if attempts >= r.policy.SendAttempts {
			return "", domain.ErrSendExceededAttempts{Attempts: r.policy.SendAttempts}
		}

		r.logger.Debug("instance not yet recognized, retrying send", "attempt", attempts)
		if err := sleep(ctx, r.policy.SendDelay); err != nil {
			return "", err
		}
	}
}

func (r *Runner) await(ctx context.Context, commandID string, commands []string) (domain.CommandInvocation, error) {
	attempts := 0
	for {
		attempts++
		invocation, err := r.api.Invocation(ctx, commandID, commands)
		switch {
		case err == nil:
			if invocation.Status.Finished() {
				r.logger.Debug("invocation finished", "status", invocation.Status, "command_id", commandID)
				return invocation, nil
			}
			if attempts >= r.policy.PollAttempts {
				return domain.CommandInvocation{}, domain.ErrCommandExceededWaitTime{Attempts: r.policy.PollAttempts}
			}
		case HasCode(err, CodeInvocationMissing):
			if attempts >= r.policy.PollAttempts {
				return domain.CommandInvocation{}, domain.ErrCommandExceededWaitTime{Attempts: r.policy.PollAttempts}
			}
		default:
			return domain.CommandInvocation{}, err
		}

		if err := sleep(ctx, r.policy.PollDelay); err != nil {
			return domain.CommandInvocation{}, err
		}
	}
}

// RunUntilSuccess reruns the whole send+poll cycle while the commands report
// anything other than success. It is meant for idempotent readiness probes
// whose business-level failure resolves itself as the remote process starts.
func (r *Runner) RunUntilSuccess(ctx context.Context, commands []string) (domain.CommandInvocation, error) {
	attempts := 0
	for {
		attempts++
		invocation, err := r.Run(ctx, commands)
		if err != nil {
			return domain.CommandInvocation{}, err
		}
		if invocation.Status == domain.CommandSuccess {
			return invocation, nil
		}
		if attempts >= r.policy.RunAttempts {
			return domain.CommandInvocation{}, domain.ErrCommandExceededAttempts{Attempts: r.policy.RunAttempts}
		}

		r.logger.Debug("commands did not succeed, retrying", "status", invocation.Status, "attempt", attempts)
		if err := sleep(ctx, r.policy.RunDelay); err != nil {
			return domain.CommandInvocation{}, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
