package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LingJien0709/shiny-carnival/internal/domain"
)

const leaderboardLimit = 100

type userJSON struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ChatHandle  string `json:"chat_handle"`
	ChatID      *int64 `json:"chat_id,omitempty"`
	TotalSaved  int    `json:"total_saved"`
}

type sessionJSON struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Date           string     `json:"date"`
	StartAt        time.Time  `json:"start_at"`
	LastReparkAt   time.Time  `json:"last_repark_at"`
	ReparkCount    int        `json:"repark_count"`
	Active         bool       `json:"active"`
	ReminderAt     *time.Time `json:"reminder_at,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
}

func toUserJSON(u *domain.User) userJSON {
	return userJSON{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		ChatHandle:  u.ChatHandle,
		ChatID:      u.ChatID,
		TotalSaved:  u.TotalSaved,
	}
}

func toSessionJSON(s *domain.ParkingSession) *sessionJSON {
	if s == nil {
		return nil
	}
	return &sessionJSON{
		ID:             s.ID,
		UserID:         s.UserID,
		Date:           s.Date,
		StartAt:        s.StartAt,
		LastReparkAt:   s.LastReparkAt,
		ReparkCount:    s.ReparkCount,
		Active:         s.Active,
		ReminderAt:     s.ReminderAt,
		ReminderSentAt: s.ReminderSentAt,
	}
}

// respondError maps the domain error taxonomy onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRulesNotApplicable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "parking is free now (weekend/holiday/after 5 PM)"})
	case errors.Is(err, domain.ErrWindowExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "3 hour window has passed, please start a new session"})
	case errors.Is(err, domain.ErrNoActiveSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "no active parking session found"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		h.log.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

type createUserRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	ChatHandle  string `json:"chat_handle" binding:"required"`
	ChatID      *int64 `json:"chat_id"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display_name and chat_handle are required"})
		return
	}
	u, err := h.repo.UpsertUser(c.Request.Context(), &domain.User{
		ID:          uuid.NewString(),
		DisplayName: req.DisplayName,
		ChatHandle:  req.ChatHandle,
		ChatID:      req.ChatID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserJSON(u))
}

func (h *Handler) me(c *gin.Context) {
	displayName := c.Query("display_name")
	if displayName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display_name is required"})
		return
	}
	u, err := h.repo.GetUserByName(c.Request.Context(), displayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	session, err := h.svc.ActiveSession(c.Request.Context(), u.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":           toUserJSON(u),
		"active_session": toSessionJSON(session),
	})
}

func (h *Handler) leaderboard(c *gin.Context) {
	users, err := h.repo.ListLeaderboard(c.Request.Context(), leaderboardLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := make([]userJSON, 0, len(users))
	for i := range users {
		out = append(out, toUserJSON(&users[i]))
	}
	c.JSON(http.StatusOK, out)
}

type parkingRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

func (h *Handler) startParking(c *gin.Context) {
	var req parkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display_name is required"})
		return
	}
	session, created, err := h.svc.Start(c.Request.Context(), req.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := gin.H{"session": toSessionJSON(session)}
	if !created {
		resp["message"] = "active session already exists"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) repark(c *gin.Context) {
	var req parkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display_name is required"})
		return
	}
	res, err := h.svc.Repark(c.Request.Context(), req.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": toSessionJSON(res.Session),
		"user":    toUserJSON(res.User),
		"saved":   res.Saved,
	})
}

func (h *Handler) testNotify(c *gin.Context) {
	var req parkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display_name is required"})
		return
	}
	u, err := h.repo.GetUserByName(c.Request.Context(), req.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.notifier.Send(c.Request.Context(), *u); err != nil {
		h.log.Error("test notification failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "notification failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "test notification sent"})
}
