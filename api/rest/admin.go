package rest

import (
	"net/http"

	"clanhub/api/ws"
	"clanhub/model"
	"clanhub/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	hub    *ws.Hub
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, hub *ws.Hub, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, hub: hub, sched: sched, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var users, clans, members int64
	h.db.Model(&model.User{}).Count(&users)
	h.db.Model(&model.Clan{}).Count(&clans)
	h.db.Model(&model.ClanMember{}).Count(&members)
	c.JSON(http.StatusOK, gin.H{
		"online_users":    h.hub.Count(),
		"total_users":     users,
		"total_clans":     clans,
		"total_members":   members,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// BanUser bans or unbans a user account.
// POST /api/admin/users/:id/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Ban {
		status = 0
	}
	result := h.db.Model(&model.User{}).Where("id = ?", userID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	// Drop the live connection of a freshly banned user.
	if req.Ban {
		h.hub.CloseUser(userID)
	}
	h.logger.Info("admin ban toggled", zap.Int64("user_id", userID), zap.Bool("ban", req.Ban))
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// DisconnectUser forcibly closes a user's WebSocket session.
// POST /api/admin/users/:id/disconnect
func (h *AdminHandler) DisconnectUser(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !h.hub.IsOnline(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not online"})
		return
	}
	h.hub.CloseUser(userID)
	h.logger.Info("admin disconnected user", zap.Int64("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
