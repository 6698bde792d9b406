package rest

import (
	"net/http"
	"strconv"

	"clanhub/clan"
	"github.com/gin-gonic/gin"
)

// writeErr translates a service error into an HTTP response. Internal errors
// are never echoed to the client.
func writeErr(c *gin.Context, err error) {
	switch clan.KindOf(err) {
	case clan.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case clan.KindForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case clan.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case clan.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// paramID parses a positive int64 path parameter, responding 400 on failure.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter with a default.
func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
