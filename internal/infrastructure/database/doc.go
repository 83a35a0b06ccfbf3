// Package database provides SQLite connectivity for the emulator's
// settings store.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Forward-only schema migrations loaded from an fs.FS
//   - Connection lifecycle
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.State.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
