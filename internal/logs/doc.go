// Package logs reads the daemon log for the CLI: the last lines of the file
// and a follow mode that keeps up with appends, truncation, and the log
// pointer moving to a new file when the daemon restarts.
package logs
