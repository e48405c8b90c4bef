// Package library persists the catalog of opened audiobooks in SQLite.
//
// Each entry keeps the raw manifest bytes so a book can be reopened, plus the summary fields
// the CLI lists and the last known DRM status. Writes from concurrent processes are serialized
// with a lock file next to the database. Schema changes bump schemaVersion; an older database
// must be deleted to adopt the new schema.
package library
