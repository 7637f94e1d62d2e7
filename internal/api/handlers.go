package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"

	"newsboy/internal/logging"
	"newsboy/internal/pipeline"
	"newsboy/internal/services"
	"newsboy/internal/store"
)

func (h *handler) status(c *gin.Context) {
	if h.controller == nil {
		h.writeError(c, http.StatusServiceUnavailable, "daemon unavailable", "")
		return
	}
	payload := h.controller.Status(c.Request.Context())
	if payload.PID == 0 {
		payload.PID = os.Getpid()
	}
	if counts, err := h.store.Counts(c.Request.Context()); err == nil {
		payload.Counts = &counts
	}
	c.JSON(http.StatusOK, payload)
}

func (h *handler) batch(c *gin.Context) {
	if h.controller == nil {
		h.writeError(c, http.StatusServiceUnavailable, "daemon unavailable", "")
		return
	}
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid json: "+err.Error(), "")
		return
	}
	op, err := pipeline.ParseOperation(req.Operation)
	if err != nil {
		h.fail(c, err)
		return
	}
	day, err := h.day(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.controller.Submit(op, day); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, BatchResponse{
		Status:    "started",
		Operation: string(op),
		Date:      day.Format(dateFormat),
	})
}

// day resolves an optional date string to local midnight; empty means today.
func (h *handler) day(value string) (time.Time, error) {
	loc := h.store.Location()
	value = strings.TrimSpace(value)
	if value == "" {
		return store.DayOf(h.now(), loc), nil
	}
	parsed, err := dateparse.ParseIn(value, loc)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrValidation, "api", "parse date", "invalid date "+value, err)
	}
	return store.DayOf(parsed, loc), nil
}

func (h *handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, store.ErrDuplicateSource):
		status = http.StatusConflict
	}
	details := services.Details(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(c.Request.Context(), h.logger),
			"api handler failed", "api_handler_failed", logging.ErrorAttrs(err)...)
	}
	h.writeError(c, status, err.Error(), details.Hint)
}

func (h *handler) writeError(c *gin.Context, status int, message, hint string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Hint: hint})
}

// cached serves key from the cache or fills it from load. Cache errors only
// cost a reload.
func cached[T any](ctx context.Context, h *handler, key string, load func(context.Context) (T, error)) (T, error) {
	var value T
	hit, err := h.cache.Get(ctx, key, &value)
	if err != nil {
		h.logger.Debug("cache read failed", logging.String("key", key), logging.Error(err))
	}
	if hit && err == nil {
		return value, nil
	}
	value, err = load(ctx)
	if err != nil {
		return value, err
	}
	if err := h.cache.Set(ctx, key, value); err != nil {
		h.logger.Debug("cache write failed", logging.String("key", key), logging.Error(err))
	}
	return value, nil
}
