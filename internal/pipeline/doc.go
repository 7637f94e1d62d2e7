// Package pipeline wires the batch stages together and exposes them as a
// table of named operations.
//
// Every operation runs its stages in order through stageexec, records a row
// in the runs table keyed by a uuid, and publishes a completion summary. The
// daemon, the HTTP API and the CLI all dispatch through Run, so the three
// entry points share one definition of what "run-full" means.
package pipeline
