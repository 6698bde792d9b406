package rest

import (
	"net/http"

	"clanhub/chat"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// SocialHandler handles friendship REST endpoints.
type SocialHandler struct {
	chat *chat.Service
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(chatSvc *chat.Service) *SocialHandler {
	return &SocialHandler{chat: chatSvc}
}

// Friends handles GET /api/social/friends.
func (h *SocialHandler) Friends(c *gin.Context) {
	friends, err := h.chat.Friends(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// Request handles POST /api/social/friends.
func (h *SocialHandler) Request(c *gin.Context) {
	var req chat.FriendRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.chat.RequestFriend(c.Request.Context(), mw.GetUserID(c), req); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "request sent"})
}

// Accept handles POST /api/social/friends/:id/accept.
func (h *SocialHandler) Accept(c *gin.Context) {
	friendshipID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.AcceptFriend(c.Request.Context(), mw.GetUserID(c), friendshipID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend added"})
}

// Remove handles DELETE /api/social/friends/:id (id = peer user ID).
func (h *SocialHandler) Remove(c *gin.Context) {
	peerID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.RemoveFriend(c.Request.Context(), mw.GetUserID(c), peerID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}

// Block handles POST /api/social/block/:id.
func (h *SocialHandler) Block(c *gin.Context) {
	targetID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.chat.Block(c.Request.Context(), mw.GetUserID(c), targetID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user blocked"})
}
