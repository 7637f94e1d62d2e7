// Package api serves the Newsboy HTTP API with gin.
//
// Handlers read the store directly for feed, briefing, preference, and source
// views, and hand batch triggers to a Controller (the daemon) so only one
// pipeline run is ever in flight. Feed and briefing projections go through
// the optional Redis cache; the pipeline invalidates it after every run.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// dates use YYYY-MM-DD in the configured timezone.
package api
