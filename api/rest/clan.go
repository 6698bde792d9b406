package rest

import (
	"net/http"

	"clanhub/audit"
	"clanhub/clan"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// ClanHandler handles clan lifecycle REST endpoints.
type ClanHandler struct {
	svc   *clan.Service
	audit *audit.Service
}

// NewClanHandler creates a new ClanHandler.
func NewClanHandler(svc *clan.Service, a *audit.Service) *ClanHandler {
	return &ClanHandler{svc: svc, audit: a}
}

func (h *ClanHandler) log(c *gin.Context, action string, clanID *int64, req interface{}, err error) {
	if h.audit == nil {
		return
	}
	userID := mw.GetUserID(c)
	entry := audit.Entry{
		TraceID: mw.GetTraceID(c),
		UserID:  &userID,
		ClanID:  clanID,
		Action:  action,
		Request: req,
		IP:      c.ClientIP(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

// Create handles POST /api/clans.
func (h *ClanHandler) Create(c *gin.Context) {
	var req clan.CreateClanInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.svc.Create(c.Request.Context(), mw.GetUserID(c), req)
	if err != nil {
		h.log(c, "clan.create", nil, req, err)
		writeErr(c, err)
		return
	}
	h.log(c, "clan.create", &created.ID, req, nil)
	c.JSON(http.StatusCreated, created)
}

// List handles GET /api/clans?page=&page_size=&search=.
func (h *ClanHandler) List(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)
	clans, total, err := h.svc.List(c.Request.Context(), page, pageSize, c.Query("search"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clans": clans, "total": total, "page": page})
}

// TopRated handles GET /api/clans/top.
func (h *ClanHandler) TopRated(c *gin.Context) {
	tags, err := h.svc.TopRated(c.Request.Context(), queryInt(c, "n", 10))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// Detail handles GET /api/clans/:tag. Works for anonymous viewers too when
// routed outside the auth group.
func (h *ClanHandler) Detail(c *gin.Context) {
	detail, err := h.svc.Find(c.Request.Context(), c.Param("tag"), mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Management handles GET /api/clans/:tag/management.
func (h *ClanHandler) Management(c *gin.Context) {
	data, err := h.svc.Management(c.Request.Context(), c.Param("tag"), mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// UpdateDetails handles PUT /api/clans/:tag.
func (h *ClanHandler) UpdateDetails(c *gin.Context) {
	var req clan.UpdateDetailsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.svc.UpdateDetails(c.Request.Context(), c.Param("tag"), mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// UpdateSettings handles PUT /api/clans/:tag/settings.
func (h *ClanHandler) UpdateSettings(c *gin.Context) {
	target, err := h.svc.ResolveTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		writeErr(c, err)
		return
	}
	var req clan.UpdateSettingsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.svc.UpdateSettings(c.Request.Context(), target.ID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Transfer handles POST /api/clans/:tag/transfer.
func (h *ClanHandler) Transfer(c *gin.Context) {
	var req clan.TransferInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.TransferOwnership(c.Request.Context(), c.Param("tag"), mw.GetUserID(c), req)
	h.log(c, "clan.transfer", nil, req, err)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ownership transferred"})
}

// Delete handles DELETE /api/clans/:tag.
func (h *ClanHandler) Delete(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), c.Param("tag"), mw.GetUserID(c))
	h.log(c, "clan.delete", nil, gin.H{"tag": c.Param("tag")}, err)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "clan deleted"})
}
