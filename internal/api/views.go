package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"newsboy/internal/briefing"
	"newsboy/internal/cache"
	"newsboy/internal/feedview"
	"newsboy/internal/services"
	"newsboy/internal/store"
)

// feed: GET /api/feed?limit=50
func (h *handler) feed(c *gin.Context) {
	limit := h.feedLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(c, http.StatusBadRequest, "limit must be a positive integer", "")
			return
		}
		limit = min(n, 200)
	}
	now := h.now().In(h.store.Location())
	// The visible set changes on the hour, so the hour is part of the key.
	key := cache.Key("feed", now.Format(dateFormat), strconv.Itoa(now.Hour()), strconv.Itoa(limit))
	view, err := cached(c.Request.Context(), h, key, func(ctx context.Context) (*feedview.View, error) {
		return feedview.Today(ctx, h.store, now, limit)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// briefingToday: GET /api/briefing
func (h *handler) briefingToday(c *gin.Context) {
	h.serveBriefing(c, "")
}

// briefingByDate: GET /api/briefing/:date
func (h *handler) briefingByDate(c *gin.Context) {
	h.serveBriefing(c, c.Param("date"))
}

func (h *handler) serveBriefing(c *gin.Context, date string) {
	day, err := h.day(date)
	if err != nil {
		h.fail(c, err)
		return
	}
	now := h.now()
	today := store.DayOf(now, h.store.Location())
	key := cache.Key("briefing", day.Format(dateFormat), today.Format(dateFormat))
	view, err := cached(c.Request.Context(), h, key, func(ctx context.Context) (*briefing.View, error) {
		v, err := briefing.Load(ctx, h.store, day, now)
		if err == nil && v == nil {
			return nil, services.Wrap(services.ErrNotFound, "api", "briefing", NoBriefingMessage, nil)
		}
		return v, err
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.writeError(c, http.StatusNotFound, NoBriefingMessage, "")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// briefings: GET /api/briefings
func (h *handler) briefings(c *gin.Context) {
	list, err := cached(c.Request.Context(), h, cache.Key("briefings"), func(ctx context.Context) ([]briefing.Summary, error) {
		return briefing.List(ctx, h.store)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"briefings": list})
}
