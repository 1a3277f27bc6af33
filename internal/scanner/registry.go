package scanner

import (
	"fmt"
	"sync"
)

// noActive marks an unset selection.
const noActive = -1

// Registry holds the enumerated devices and the optional active selection.
//
// The active index, when set, is always within [0, Len()).
//
// All public methods are thread-safe.
type Registry struct {
	devices []Device
	active  int
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry with no active device.
func NewRegistry() *Registry {
	return &Registry{active: noActive}
}

// Populate replaces the registry contents and clears the active selection.
func (r *Registry) Populate(devices []Device) {
	cp := make([]Device, len(devices))
	copy(cp, devices)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = cp
	r.active = noActive
}

// Get returns the device at index.
// Returns ErrOutOfRange if index is not in [0, Len()).
func (r *Registry) Get(index int) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.inRange(index) {
		return Device{}, fmt.Errorf("%w: %d (have %d)", ErrOutOfRange, index, len(r.devices))
	}
	return r.devices[index], nil
}

// SetActive selects the device at index.
// Returns ErrOutOfRange and leaves the selection unchanged if index is invalid.
func (r *Registry) SetActive(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inRange(index) {
		return fmt.Errorf("%w: %d (have %d)", ErrOutOfRange, index, len(r.devices))
	}
	r.active = index
	return nil
}

// ActiveDevice returns the selected device, or false if none is selected.
func (r *Registry) ActiveDevice() (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == noActive {
		return Device{}, false
	}
	return r.devices[r.active], true
}

// ActiveIndex returns the selected index, or false if none is selected.
func (r *Registry) ActiveIndex() (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == noActive {
		return 0, false
	}
	return r.active, true
}

// Devices returns a copy of the devices in registry order.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// TuplesJSON encodes the registry as [[port,vendor,pid,type],...].
func (r *Registry) TuplesJSON() ([]byte, error) {
	return MarshalTuples(r.Devices())
}

// DeviceMessage describes the device at index for <base>/device.
func (r *Registry) DeviceMessage(index int) (DeviceMessage, error) {
	d, err := r.Get(index)
	if err != nil {
		return DeviceMessage{}, err
	}
	return NewDeviceMessage(index, d), nil
}

// inRange must be called with mu held.
func (r *Registry) inRange(index int) bool {
	return index >= 0 && index < len(r.devices)
}
