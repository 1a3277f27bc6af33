package mqtt

import "strings"

// Topic suffixes under the configured base topic.
const (
	// TopicSuffixState carries retained presence ("online"/"offline").
	TopicSuffixState = "state"

	// TopicSuffixCommands is the inbound command namespace.
	TopicSuffixCommands = "in"

	// TopicSuffixDevices carries the aggregate device list.
	TopicSuffixDevices = "devices"

	// TopicSuffixDevice carries one message per device.
	TopicSuffixDevice = "device"
)

// Topics provides builders for the bridge's MQTT topics under one base.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("office/sane/")
//	topics.Command("set_device")
//	// Returns: "office/sane/in/set_device"
type Topics struct {
	base string
}

// NewTopics returns builders for base with trailing slashes stripped.
func NewTopics(base string) Topics {
	return Topics{base: strings.TrimRight(base, "/")}
}

// Base returns the normalised base topic.
func (t Topics) Base() string {
	return t.base
}

// State returns the presence topic.
//
// Example: sane/state
func (t Topics) State() string {
	return t.base + "/" + TopicSuffixState
}

// Command returns the topic for one inbound command.
//
// Example: sane/in/list_devices
func (t Topics) Command(name string) string {
	return t.CommandPrefix() + name
}

// CommandPrefix returns the command namespace including its trailing slash.
//
// Example: sane/in/
func (t Topics) CommandPrefix() string {
	return t.base + "/" + TopicSuffixCommands + "/"
}

// AllCommands returns a pattern matching every inbound command.
//
// Pattern: sane/in/#
func (t Topics) AllCommands() string {
	return t.CommandPrefix() + "#"
}

// Devices returns the aggregate device list topic.
//
// Example: sane/devices
func (t Topics) Devices() string {
	return t.base + "/" + TopicSuffixDevices
}

// Device returns the per-device topic.
//
// Example: sane/device
func (t Topics) Device() string {
	return t.base + "/" + TopicSuffixDevice
}

// CommandName extracts the command from an inbound topic.
// It returns false for topics outside the command namespace or with an
// empty command.
func (t Topics) CommandName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.CommandPrefix())
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
