// Package main hosts the Newsboy CLI entrypoint and command graph.
//
// Commands that change pipeline state prefer the running daemon's HTTP API
// and fall back to operating on the database directly when no daemon is
// reachable. Read-only views and source or preference edits always go
// straight to the store.
package main
