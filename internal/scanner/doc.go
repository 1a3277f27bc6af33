// Package scanner holds the scanner devices known to the bridge.
//
// Devices are enumerated once at startup, either by running the SANE
// frontend (scanimage) or from a static list in the configuration, and
// stored in a Registry. The registry keeps the enumeration order; a
// device's index in that order is its identity on the wire.
//
//	enumerator ──Enumerate──▶ []Device ──Populate──▶ Registry
//	                                                   │
//	                       list_devices / set_device ──┘
//
// Only the active selection changes after startup. Nothing here is
// persisted.
package scanner
