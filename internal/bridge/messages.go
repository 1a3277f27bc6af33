package bridge

import "time"

// Command names, as they appear after <base>/in/.
const (
	CommandListDevices = "list_devices"
	CommandSetDevice   = "set_device"
)

// Outcome classifies how a command was handled.
type Outcome string

const (
	// OutcomeOK means the command was carried out.
	OutcomeOK Outcome = "ok"
	// OutcomeRejected means the command was recognised but could not be carried out.
	OutcomeRejected Outcome = "rejected"
	// OutcomeIgnored means no handler exists for the command.
	OutcomeIgnored Outcome = "ignored"
)

// CommandRecord describes one handled command for the audit and metrics sinks.
type CommandRecord struct {
	Command    string
	Topic      string
	Payload    string
	Outcome    Outcome
	Detail     string
	ReceivedAt time.Time
}
