package domain

import "fmt"

// Precondition errors are expected, user-facing outcomes. The control surface
// translates them into messages; they are never logged as failures.

type ErrMaintenanceInProgress struct{}

func (e ErrMaintenanceInProgress) Error() string {
	return "the instance is undergoing maintenance"
}

type ErrUnknownWorkload struct {
	Name string
}

func (e ErrUnknownWorkload) Error() string {
	return fmt.Sprintf("no configuration found for workload %q", e.Name)
}

type ErrWorkloadAlreadyActive struct {
	Name string
}

func (e ErrWorkloadAlreadyActive) Error() string {
	return fmt.Sprintf("workload %q is already running on the instance", e.Name)
}

type ErrAlreadyInTargetState struct {
	State InstanceState
}

func (e ErrAlreadyInTargetState) Error() string {
	return fmt.Sprintf("the instance is already %s", e.State)
}

type ErrUnexpectedInstanceState struct {
	State InstanceState
}

func (e ErrUnexpectedInstanceState) Error() string {
	return fmt.Sprintf("the instance has the unexpected state %s", e.State)
}

type ErrInstanceNotRunning struct{}

func (e ErrInstanceNotRunning) Error() string {
	return "the instance is not running"
}

// ErrOperationInProgress is returned when the instance gate is already held.
// Requests fail fast instead of queueing so they never act on a descriptor
// that another operation is about to supersede.
type ErrOperationInProgress struct{}

func (e ErrOperationInProgress) Error() string {
	return "another instance operation is in progress, try again later"
}

// ErrNoInstanceDescription is raised when the control API returns zero
// matching instances. That is a configuration problem, not a transient one,
// so it is never retried.
type ErrNoInstanceDescription struct{}

func (e ErrNoInstanceDescription) Error() string {
	return "expected an instance description, but none were found"
}

// Retry-exhaustion errors. Each tier of the command runner fails with its own
// type so callers can tell "the API never became consistent" apart from "the
// command itself never succeeded".

type ErrSendExceededAttempts struct {
	Attempts int
}

func (e ErrSendExceededAttempts) Error() string {
	return fmt.Sprintf("command could not be delivered to the instance after %d attempts", e.Attempts)
}

type ErrCommandExceededWaitTime struct {
	Attempts int
}

func (e ErrCommandExceededWaitTime) Error() string {
	return fmt.Sprintf("command did not finish within %d status queries", e.Attempts)
}

type ErrCommandExceededAttempts struct {
	Attempts int
}

func (e ErrCommandExceededAttempts) Error() string {
	return fmt.Sprintf("command did not run successfully after %d attempts", e.Attempts)
}
