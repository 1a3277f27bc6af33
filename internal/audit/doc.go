// Package audit stores the command audit trail in SQLite.
//
// Every message received on the bridge's command namespace becomes one
// command_log row, whether it was carried out, rejected or ignored. The
// trail is optional and only written when audit logging is enabled.
package audit
