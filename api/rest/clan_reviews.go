package rest

import (
	"net/http"

	"clanhub/clan"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// ReviewHandler handles clan review endpoints.
type ReviewHandler struct {
	svc *clan.Service
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(svc *clan.Service) *ReviewHandler {
	return &ReviewHandler{svc: svc}
}

// Create handles POST /api/clans/:tag/reviews.
func (h *ReviewHandler) Create(c *gin.Context) {
	target, err := h.svc.ResolveTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		writeErr(c, err)
		return
	}
	var req clan.ReviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	review, err := h.svc.CreateReview(c.Request.Context(), target.ID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// List handles GET /api/clans/:tag/reviews.
func (h *ReviewHandler) List(c *gin.Context) {
	target, err := h.svc.ResolveTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		writeErr(c, err)
		return
	}
	reviews, err := h.svc.Reviews(c.Request.Context(), target.ID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}
