// Package ingest fetches every enabled source and stores items it has not
// seen before. The url unique constraint is the dedup authority, so sources
// can be fetched in parallel without coordinating inserts.
package ingest
