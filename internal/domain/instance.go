package domain

import "time"

// InstanceState mirrors the state machine of the remote compute instance.
type InstanceState string

const (
	StatePending      InstanceState = "pending"
	StateRunning      InstanceState = "running"
	StateShuttingDown InstanceState = "shutting-down"
	StateTerminated   InstanceState = "terminated"
	StateStopping     InstanceState = "stopping"
	StateStopped      InstanceState = "stopped"
)

// Valid reports whether s is one of the states the control API can report.
func (s InstanceState) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateShuttingDown, StateTerminated, StateStopping, StateStopped:
		return true
	}
	return false
}

// InstanceDescription is an immutable snapshot of the instance as reported by
// the control API. Address fields are empty while the instance has no public
// endpoint; that is not an error. A fresh description supersedes the previous
// one on every query.
type InstanceDescription struct {
	State           InstanceState `json:"state"`
	ImageID         string        `json:"image_id"`
	LaunchTime      time.Time     `json:"launch_time"`
	PublicIPAddress string        `json:"public_ip_address,omitempty"`
	PublicDNSName   string        `json:"public_dns_name,omitempty"`
}
