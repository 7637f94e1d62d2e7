package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"newsboy/internal/opml"
	"newsboy/internal/services"
	"newsboy/internal/store"
)

// maxOPMLBytes bounds an import body.
const maxOPMLBytes = 2 << 20

func (h *handler) listSources(c *gin.Context) {
	sources, err := h.store.ListSources(c.Request.Context(), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	if sources == nil {
		sources = []store.Source{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

func (h *handler) addSource(c *gin.Context) {
	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, "invalid json: "+err.Error(), "")
		return
	}
	feedURL := strings.TrimSpace(req.FeedURL)
	if feedURL == "" {
		h.fail(c, services.Wrap(services.ErrValidation, "api", "add source", "feedUrl is required", nil))
		return
	}
	contentType := store.ContentType(strings.TrimSpace(req.ContentType))
	switch contentType {
	case "":
		contentType = opml.DetectContentType(req.Name, feedURL)
	case store.ContentArticle, store.ContentWebcomic, store.ContentMixed:
	default:
		h.fail(c, services.Wrap(services.ErrValidation, "api", "add source", "unknown contentType "+req.ContentType, nil))
		return
	}
	src, err := h.store.AddSource(c.Request.Context(), store.Source{
		Name:        req.Name,
		FeedURL:     feedURL,
		SiteURL:     req.SiteURL,
		Category:    req.Category,
		ContentType: contentType,
		Enabled:     true,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, src)
}

// importSources: POST /api/sources/import with an OPML body.
func (h *handler) importSources(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxOPMLBytes)
	report, err := opml.Import(c.Request.Context(), h.store, body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
