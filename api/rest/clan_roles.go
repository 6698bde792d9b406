package rest

import (
	"net/http"

	"clanhub/clan"
	mw "clanhub/middleware"
	"github.com/gin-gonic/gin"
)

// RoleHandler handles clan role endpoints.
type RoleHandler struct {
	svc *clan.Service
}

// NewRoleHandler creates a new RoleHandler.
func NewRoleHandler(svc *clan.Service) *RoleHandler {
	return &RoleHandler{svc: svc}
}

func (h *RoleHandler) clanID(c *gin.Context) (int64, bool) {
	target, err := h.svc.ResolveTag(c.Request.Context(), c.Param("tag"))
	if err != nil {
		writeErr(c, err)
		return 0, false
	}
	return target.ID, true
}

// List handles GET /api/clans/:tag/roles.
func (h *RoleHandler) List(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	roles, err := h.svc.Roles(c.Request.Context(), clanID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// Create handles POST /api/clans/:tag/roles.
func (h *RoleHandler) Create(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	var req clan.RoleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := h.svc.CreateRole(c.Request.Context(), clanID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// Update handles PUT /api/clans/:tag/roles/:rid.
func (h *RoleHandler) Update(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	roleID, ok := paramID(c, "rid")
	if !ok {
		return
	}
	var req clan.RoleUpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := h.svc.UpdateRole(c.Request.Context(), clanID, roleID, mw.GetUserID(c), req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// Delete handles DELETE /api/clans/:tag/roles/:rid.
func (h *RoleHandler) Delete(c *gin.Context) {
	clanID, ok := h.clanID(c)
	if !ok {
		return
	}
	roleID, ok := paramID(c, "rid")
	if !ok {
		return
	}
	if err := h.svc.DeleteRole(c.Request.Context(), clanID, roleID, mw.GetUserID(c)); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role deleted"})
}
