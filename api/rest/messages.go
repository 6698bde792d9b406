package rest

import (
	"net/http"

	"clanhub/chat"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// MessageHandler handles direct-message REST endpoints.
type MessageHandler struct {
	chat *chat.Service
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(chatSvc *chat.Service) *MessageHandler {
	return &MessageHandler{chat: chatSvc}
}

// Send handles POST /api/messages.
func (h *MessageHandler) Send(c *gin.Context) {
	var req chat.DMInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.chat.SendDM(c.Request.Context(), mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Conversations handles GET /api/messages.
func (h *MessageHandler) Conversations(c *gin.Context) {
	previews, err := h.chat.Conversations(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": previews})
}

// Conversation handles GET /api/messages/:uid?page=.
func (h *MessageHandler) Conversation(c *gin.Context) {
	peerID, ok := paramID(c, "uid")
	if !ok {
		return
	}
	msgs, err := h.chat.Conversation(c.Request.Context(), mw.GetUserID(c), peerID, queryInt(c, "page", 1))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead handles POST /api/messages/:uid/read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	peerID, ok := paramID(c, "uid")
	if !ok {
		return
	}
	if err := h.chat.MarkRead(c.Request.Context(), mw.GetUserID(c), peerID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked read"})
}

// Edit handles PUT /api/messages/id/:mid.
func (h *MessageHandler) Edit(c *gin.Context) {
	msgID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	var req chat.EditInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.chat.EditDM(c.Request.Context(), msgID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /api/messages/id/:mid.
func (h *MessageHandler) Delete(c *gin.Context) {
	msgID, ok := paramID(c, "mid")
	if !ok {
		return
	}
	if err := h.chat.DeleteDM(c.Request.Context(), msgID, mw.GetUserID(c)); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}
