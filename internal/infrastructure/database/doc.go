// Package database provides SQLite connectivity for Flashline Core.
//
// It owns the connection lifecycle (WAL mode, busy timeout, single writer)
// and applies the embedded schema migrations that back the activity history.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/flashline.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
