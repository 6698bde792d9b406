package rest

import (
	"net/http"

	"clanhub/audit"
	"clanhub/clan"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// ApplicationHandler handles clan application endpoints.
type ApplicationHandler struct {
	svc   *clan.Service
	audit *audit.Service
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(svc *clan.Service, a *audit.Service) *ApplicationHandler {
	return &ApplicationHandler{svc: svc, audit: a}
}

// Apply handles POST /api/clans/:tag/applications.
func (h *ApplicationHandler) Apply(c *gin.Context) {
	target, err := h.svc.ResolveTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		writeErr(c, err)
		return
	}
	var req clan.ApplyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app, err := h.svc.Apply(c.Request.Context(), target.ID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// Handle handles PUT /api/applications/:id.
func (h *ApplicationHandler) Handle(c *gin.Context) {
	appID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req clan.HandleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.HandleApplication(c.Request.Context(), appID, mw.GetUserID(c), req)
	if h.audit != nil {
		userID := mw.GetUserID(c)
		entry := audit.Entry{
			TraceID: mw.GetTraceID(c),
			UserID:  &userID,
			Action:  "application.handle",
			Request: gin.H{"application_id": appID, "status": req.Status},
			IP:      c.ClientIP(),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		h.audit.Log(entry)
	}
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "application " + req.Status})
}

// Mine handles GET /api/me/applications.
func (h *ApplicationHandler) Mine(c *gin.Context) {
	apps, err := h.svc.MyApplications(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}
