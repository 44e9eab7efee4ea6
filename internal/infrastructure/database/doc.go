// Package database provides SQLite database connectivity for WattMCP Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded into the binary
//   - Connection pooling and lifecycle management
//
// WattMCP persists only device metadata (identity, location, model
// parameters, last-seen timestamps). In-flight command correlations are
// deliberately NOT persisted: a process restart loses them, and callers
// observe that as a timeout.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/wattmcp.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
