package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"newsboy/internal/cache"
	"newsboy/internal/feedview"
	"newsboy/internal/logging"
	"newsboy/internal/store"
	"newsboy/internal/tuning"
)

// Deps are the collaborators the handlers need. Controller may be nil when
// the API runs without a daemon; status and batch routes then answer 503.
type Deps struct {
	Store      *store.Store
	Tuner      *tuning.Tuner
	Controller Controller
	Cache      cache.Cache
	Logger     *slog.Logger
	Token      string
	Now        func() time.Time
	FeedLimit  int
}

type handler struct {
	store      *store.Store
	tuner      *tuning.Tuner
	controller Controller
	cache      cache.Cache
	logger     *slog.Logger
	now        func() time.Time
	feedLimit  int
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewRouter builds the gin engine with every /api route registered.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &handler{
		store:      deps.Store,
		tuner:      deps.Tuner,
		controller: deps.Controller,
		cache:      deps.Cache,
		logger:     logging.NewComponentLogger(logger, "api"),
		now:        deps.Now,
		feedLimit:  deps.FeedLimit,
	}
	if h.cache == nil {
		h.cache = cache.Nop{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.feedLimit <= 0 {
		h.feedLimit = feedview.DefaultFallbackLimit
	}

	r := gin.New()
	r.Use(requestID(), accessLog(h.logger), gin.Recovery())

	api := r.Group("/api", bearerAuth(deps.Token))
	{
		api.GET("/status", h.status)
		api.POST("/batch", h.batch)

		api.GET("/feed", h.feed)

		api.GET("/briefing", h.briefingToday)
		api.GET("/briefing/:date", h.briefingByDate)
		api.GET("/briefings", h.briefings)

		api.GET("/preferences", h.getPreferences)
		api.PUT("/preferences", h.putPreferences)
		api.POST("/tune", h.tune)

		api.GET("/sources", h.listSources)
		api.POST("/sources", h.addSource)
		api.POST("/sources/import", h.importSources)
	}
	return r
}
