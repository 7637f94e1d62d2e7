package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"newsboy/internal/prefs"
	"newsboy/internal/tuning"
)

func (h *handler) getPreferences(c *gin.Context) {
	p, err := h.store.GetPreferences(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// putPreferences replaces the fields present in the body. Maps given here
// replace the stored maps outright; tuning is the merging path.
func (h *handler) putPreferences(c *gin.Context) {
	var changes prefs.Changes
	if err := c.ShouldBindJSON(&changes); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid json: "+err.Error(), "")
		return
	}
	ctx := c.Request.Context()
	current, err := h.store.GetPreferences(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	updated := current.Replace(changes)
	if err := h.store.SavePreferences(ctx, updated); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *handler) tune(c *gin.Context) {
	if h.tuner == nil {
		h.writeError(c, http.StatusServiceUnavailable, "tuning unavailable", "")
		return
	}
	var req TuneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid json: "+err.Error(), "")
		return
	}
	out, err := h.tuner.Tune(c.Request.Context(), req.Message)
	if err != nil {
		if errors.Is(err, tuning.ErrEmptyMessage) {
			h.writeError(c, http.StatusBadRequest, "message is required", "")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

