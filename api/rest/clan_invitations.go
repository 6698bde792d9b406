package rest

import (
	"net/http"

	"clanhub/clan"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// InvitationHandler handles clan invitation endpoints.
type InvitationHandler struct {
	svc *clan.Service
}

// NewInvitationHandler creates a new InvitationHandler.
func NewInvitationHandler(svc *clan.Service) *InvitationHandler {
	return &InvitationHandler{svc: svc}
}

func (h *InvitationHandler) clanID(c *gin.Context) (int64, bool) {
	target, err := h.svc.ResolveTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		writeErr(c, err)
		return 0, false
	}
	return target.ID, true
}

// Invite handles POST /api/clans/:tag/invitations.
func (h *InvitationHandler) Invite(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	var req clan.InviteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := h.svc.Invite(c.Request.Context(), clanID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// Sent handles GET /api/clans/:tag/invitations.
func (h *InvitationHandler) Sent(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	invs, err := h.svc.SentInvitations(c.Request.Context(), clanID, mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

// Cancel handles DELETE /api/clans/:tag/invitations/:iid.
func (h *InvitationHandler) Cancel(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	invID, ok := paramID(c, "iid")
	if !ok {
		return
	}
	if err := h.svc.CancelInvitation(c.Request.Context(), clanID, invID, mw.GetUserID(c)); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invitation cancelled"})
}

// Mine handles GET /api/me/invitations.
func (h *InvitationHandler) Mine(c *gin.Context) {
	invs, err := h.svc.MyInvitations(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

type handleInvitationRequest struct {
	Action string `json:"action" binding:"required,oneof=accept decline"`
}

// Handle handles PUT /api/invitations/:id.
func (h *InvitationHandler) Handle(c *gin.Context) {
	invID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req handleInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.HandleInvitation(c.Request.Context(), invID, mw.GetUserID(c), req.Action); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invitation " + req.Action + "d"})
}
