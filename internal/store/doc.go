// Package store persists Newsboy state in SQLite.
//
// The Store owns the database connection, schema initialization, and busy
// retries, and exposes focused operations per table: sources, articles,
// daily slots, the preferences singleton, briefings, tuning logs, the
// key/value state used for the daemon's last-run marker, and the runs
// history.
//
// Deduplication relies on UNIQUE constraints (articles.url, sources.feed_url,
// briefings.date, daily_slots (date, position)) with INSERT ... ON CONFLICT DO
// NOTHING, so concurrent writers never produce duplicates. Day keys are stored
// as local calendar dates in the configured timezone.
//
// Schema changes bump schemaVersion in schema.go; users move the database
// aside to adopt a new schema.
package store
