// Package database opens the SQLite file that backs the command audit log.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Applying embedded schema migrations, one transaction per migration
//   - Health checks and shutdown
//
// The database is optional: it is only opened when audit.enabled is set.
// Scanner device lists are never stored here.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Audit.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are registered by importing the
// migrations package for its side effect.
package database
