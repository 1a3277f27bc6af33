package scanner

import (
	"encoding/json"
	"fmt"
)

// Device is one scanner as reported by the SANE driver.
// It is immutable once enumerated.
type Device struct {
	// Port is the SANE device name, e.g. "epson2:libusb:001:004".
	Port      string
	Vendor    string
	ProductID string
	// Type is the SANE device class, e.g. "flatbed scanner".
	Type string
}

// Tuple returns the device as [port, vendor, productId, type].
func (d Device) Tuple() [4]string {
	return [4]string{d.Port, d.Vendor, d.ProductID, d.Type}
}

// String returns a human-readable description for logs.
func (d Device) String() string {
	return fmt.Sprintf("%s %s (%s) at %s", d.Vendor, d.ProductID, d.Type, d.Port)
}

// DeviceMessage is the payload published on <base>/device.
type DeviceMessage struct {
	ID     int    `json:"id"`
	Port   string `json:"port"`
	Vendor string `json:"vendor"`
	PID    string `json:"pid"`
	Type   string `json:"type"`
}

// NewDeviceMessage describes d at registry index id.
func NewDeviceMessage(id int, d Device) DeviceMessage {
	return DeviceMessage{
		ID:     id,
		Port:   d.Port,
		Vendor: d.Vendor,
		PID:    d.ProductID,
		Type:   d.Type,
	}
}

// MarshalTuples encodes devices as a JSON array of tuples in order.
// An empty or nil slice encodes as [].
func MarshalTuples(devices []Device) ([]byte, error) {
	tuples := make([][4]string, 0, len(devices))
	for _, d := range devices {
		tuples = append(tuples, d.Tuple())
	}
	data, err := json.Marshal(tuples)
	if err != nil {
		return nil, fmt.Errorf("marshalling device tuples: %w", err)
	}
	return data, nil
}
