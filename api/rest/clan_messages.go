package rest

import (
	"net/http"

	"clanhub/chat"
	"clanhub/clan"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// ClanMessageHandler handles clan chat REST endpoints.
type ClanMessageHandler struct {
	chat  *chat.Service
	clans *clan.Service
}

// NewClanMessageHandler creates a new ClanMessageHandler.
func NewClanMessageHandler(chatSvc *chat.Service, clanSvc *clan.Service) *ClanMessageHandler {
	return &ClanMessageHandler{chat: chatSvc, clans: clanSvc}
}

func (h *ClanMessageHandler) clanID(c *gin.Context) (int64, bool) {
	target, err := h.clans.ResolveTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		writeErr(c, err)
		return 0, false
	}
	return target.ID, true
}

// Create handles POST /api/clans/:tag/messages.
func (h *ClanMessageHandler) Create(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	var req chat.ClanMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.chat.CreateClanMessage(c.Request.Context(), clanID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /api/clans/:tag/messages?channel=&page=.
func (h *ClanMessageHandler) List(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	msgs, err := h.chat.ClanMessages(c.Request.Context(), clanID, mw.GetUserID(c),
		c.Query("channel"), queryInt(c, "page", 1))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Edit handles PUT /api/clans/:tag/messages/:mid.
func (h *ClanMessageHandler) Edit(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	msgID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	var req chat.EditInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.chat.EditClanMessage(c.Request.Context(), clanID, msgID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /api/clans/:tag/messages/:mid.
func (h *ClanMessageHandler) Delete(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	msgID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	if err := h.chat.DeleteClanMessage(c.Request.Context(), clanID, msgID, mw.GetUserID(c)); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}
