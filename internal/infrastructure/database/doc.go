// Package database provides SQLite connectivity for Gray Logic Motion.
//
// The database holds the persistent slave registry of a master machine.
// Schema changes live in the top-level migrations package as embedded
// YYYYMMDD_HHMMSS_description.{up,down}.sql files and are applied with
// Migrate at start-up.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
package database
