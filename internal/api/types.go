package api

import (
	"context"
	"time"

	"newsboy/internal/pipeline"
	"newsboy/internal/stage"
	"newsboy/internal/store"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

const dateFormat = "2006-01-02"

// NoBriefingMessage is returned when a date has no briefing.
const NoBriefingMessage = "No briefing available for this date, gov'nor!"

// Controller is the daemon surface the API drives.
type Controller interface {
	Status(ctx context.Context) DaemonStatus
	Submit(op pipeline.Operation, day time.Time) error
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	Phase         string         `json:"phase"`
	Operation     string         `json:"operation,omitempty"`
	LastBatchDate string         `json:"lastBatchDate,omitempty"`
	NextRun       string         `json:"nextRun,omitempty"`
	LastRun       *store.Run     `json:"lastRun,omitempty"`
	Stages        []stage.Health `json:"stages"`
	Counts        *store.Counts  `json:"counts,omitempty"`
	DatabasePath  string         `json:"databasePath"`
	LockFilePath  string         `json:"lockFilePath"`
	LogPath       string         `json:"logPath"`
	APIAddress    string         `json:"apiAddress,omitempty"`
}

// BatchRequest triggers a pipeline operation. Date defaults to today.
type BatchRequest struct {
	Operation string `json:"operation"`
	Date      string `json:"date,omitempty"`
}

// BatchResponse acknowledges a started operation.
type BatchResponse struct {
	Status    string `json:"status"`
	Operation string `json:"operation"`
	Date      string `json:"date"`
}

// TuneRequest carries a free-text preference request.
type TuneRequest struct {
	Message string `json:"message"`
}

// SourceRequest adds a source manually.
type SourceRequest struct {
	Name        string `json:"name"`
	FeedURL     string `json:"feedUrl"`
	SiteURL     string `json:"siteUrl,omitempty"`
	Category    string `json:"category,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// FormatTime renders t for payloads, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}

// FormatDate renders a day key.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateFormat)
}
