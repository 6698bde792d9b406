package rest

import (
	"net/http"

	"clanhub/audit"
	"clanhub/clan"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// MemberHandler handles membership, role-assignment and moderation endpoints.
type MemberHandler struct {
	svc   *clan.Service
	audit *audit.Service
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(svc *clan.Service, a *audit.Service) *MemberHandler {
	return &MemberHandler{svc: svc, audit: a}
}

// clanID resolves the :tag route parameter to a clan ID.
func (h *MemberHandler) clanID(c *gin.Context) (int64, bool) {
	target, err := h.svc.ResolveTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		writeErr(c, err)
		return 0, false
	}
	return target.ID, true
}

func (h *MemberHandler) log(c *gin.Context, action string, clanID int64, req interface{}, err error) {
	if h.audit == nil {
		return
	}
	userID := mw.GetUserID(c)
	entry := audit.Entry{
		TraceID: mw.GetTraceID(c),
		UserID:  &userID,
		ClanID:  &clanID,
		Action:  action,
		Request: req,
		IP:      c.ClientIP(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

// Join handles POST /api/clans/:tag/join (open clans only).
func (h *MemberHandler) Join(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	member, err := h.svc.JoinOpen(c.Request.Context(), clanID, mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

// Leave handles POST /api/clans/leave.
func (h *MemberHandler) Leave(c *gin.Context) {
	if err := h.svc.Leave(c.Request.Context(), mw.GetUserID(c)); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left clan"})
}

// Kick handles DELETE /api/clans/:tag/members/:mid.
func (h *MemberHandler) Kick(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	memberID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	err := h.svc.Kick(c.Request.Context(), clanID, mw.GetUserID(c), memberID)
	h.log(c, "member.kick", clanID, gin.H{"member_id": memberID}, err)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member kicked"})
}

// ChangeRole handles PUT /api/clans/:tag/members/:mid/role.
func (h *MemberHandler) ChangeRole(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	memberID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	var req clan.ChangeRoleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.ChangeMemberRole(c.Request.Context(), clanID, mw.GetUserID(c), memberID, req); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role updated"})
}

// Warn handles POST /api/clans/:tag/members/:mid/warnings.
func (h *MemberHandler) Warn(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	memberID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	var req clan.WarnInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	warning, err := h.svc.Warn(c.Request.Context(), clanID, mw.GetUserID(c), memberID, req)
	h.log(c, "member.warn", clanID, req, err)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, warning)
}

// Warnings handles GET /api/clans/:tag/warnings.
func (h *MemberHandler) Warnings(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	warnings, err := h.svc.Warnings(c.Request.Context(), clanID, mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

// DeleteWarning handles DELETE /api/clans/:tag/warnings/:wid.
func (h *MemberHandler) DeleteWarning(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	warningID, ok := paramID(c, "wid")
	if !ok {
		return
	}
	if err := h.svc.DeleteWarning(c.Request.Context(), clanID, mw.GetUserID(c), warningID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "warning removed"})
}

// MyWarnings handles GET /api/me/warnings.
func (h *MemberHandler) MyWarnings(c *gin.Context) {
	warnings, err := h.svc.MyWarnings(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

// Mute handles POST /api/clans/:tag/members/:mid/mute.
func (h *MemberHandler) Mute(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	memberID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	var req clan.MuteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.Mute(c.Request.Context(), clanID, mw.GetUserID(c), memberID, req)
	h.log(c, "member.mute", clanID, req, err)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member muted"})
}

// Unmute handles DELETE /api/clans/:tag/members/:mid/mute.
func (h *MemberHandler) Unmute(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	memberID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	if err := h.svc.Unmute(c.Request.Context(), clanID, mw.GetUserID(c), memberID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member unmuted"})
}
