// Package shutdown turns termination requests into a single, ordered teardown.
//
//	Running ──Request / SIGINT / SIGTERM──▶ ShutdownRequested ──teardown──▶ Terminated
//
// The control goroutine blocks in Run on a channel that closes on the
// first request; there is no polling. Later requests are no-ops, so a
// second Ctrl+C does not run the teardown twice. Message handlers that
// are already running are not cancelled.
package shutdown
