// Package daemon coordinates the long-running Newsboy process.
//
// It owns the daily trigger (a robfig/cron tick that checks whether today's
// batch is due), the in-process running flag that keeps a single pipeline run
// in flight, and the HTTP API listener. A flock on the log directory prevents
// two daemons from sharing one database.
//
// Keep orchestration here: stage logic lives in the pipeline and its
// component packages.
package daemon
