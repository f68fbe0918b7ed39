package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LingJien0709/shiny-carnival/internal/parking"
	"github.com/LingJien0709/shiny-carnival/internal/scheduler"
	"github.com/LingJien0709/shiny-carnival/internal/store"
)

// Handler exposes the thin HTTP surface over the parking core.
type Handler struct {
	repo          store.Repo
	svc           *parking.Service
	notifier      scheduler.Notifier
	log           *zap.Logger
	webhookSecret string
}

// NewHandler creates the HTTP handler set.
func NewHandler(repo store.Repo, svc *parking.Service, notifier scheduler.Notifier, log *zap.Logger, webhookSecret string) *Handler {
	return &Handler{
		repo:          repo,
		svc:           svc,
		notifier:      notifier,
		log:           log,
		webhookSecret: webhookSecret,
	}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(200) })

	api := r.Group("/api")
	{
		api.POST("/users", h.createUser)
		api.GET("/me", h.me)
		api.GET("/leaderboard", h.leaderboard)
		api.POST("/parking/start", h.startParking)
		api.POST("/parking/repark", h.repark)
		api.POST("/notify/test", h.testNotify)
		api.POST("/webhook/chat/user", h.verifyWebhookSignature, h.chatUserWebhook)
	}
}
