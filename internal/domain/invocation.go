package domain

// CommandStatus is the lifecycle status of one command invocation on the
// remote-execution service.
type CommandStatus string

const (
	CommandPending    CommandStatus = "Pending"
	CommandInProgress CommandStatus = "InProgress"
	CommandDelayed    CommandStatus = "Delayed"
	CommandSuccess    CommandStatus = "Success"
	CommandCancelled  CommandStatus = "Cancelled"
	CommandFailed     CommandStatus = "Failed"
	CommandTimedOut   CommandStatus = "TimedOut"
	CommandCancelling CommandStatus = "Cancelling"
)

// Finished reports whether the invocation has left the in-flight statuses.
func (s CommandStatus) Finished() bool {
	switch s {
	case CommandPending, CommandInProgress, CommandDelayed:
		return false
	}
	return true
}

// CommandInvocation is the immutable outcome of one completed poll of a
// command invocation.
type CommandInvocation struct {
	Commands    []string
	Status      CommandStatus
	Output      string
	ErrorOutput string
}
