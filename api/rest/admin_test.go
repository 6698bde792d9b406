package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"clanhub/api/rest"
	"clanhub/api/ws"
	"clanhub/model"
	"clanhub/scheduler"
	"clanhub/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testAdminKey = "admin-secret"

func newAdminSetup(t *testing.T, adminKey string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	hub := ws.NewHub(zap.NewNop())
	sched := scheduler.New(zap.NewNop())
	t.Cleanup(sched.Stop)

	adminH := rest.NewAdminHandler(db, hub, sched, zap.NewNop())
	r := gin.New()
	g := r.Group("/api/admin", rest.AdminAuth(adminKey))
	g.GET("/metrics", adminH.Metrics)
	g.POST("/users/:id/ban", adminH.BanUser)
	g.POST("/users/:id/disconnect", adminH.DisconnectUser)
	g.GET("/scheduler", adminH.ListSchedulerTasks)
	return r, db
}

func TestAdminAuth_DisabledWithoutKey(t *testing.T) {
	r, _ := newAdminSetup(t, "")
	w := getReq(r, "/api/admin/metrics", "X-Admin-Key", "whatever")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	r, _ := newAdminSetup(t, testAdminKey)
	w := getReq(r, "/api/admin/metrics", "X-Admin-Key", "bogus")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w2 := getReq(r, "/api/admin/metrics")
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestAdminMetrics(t *testing.T) {
	r, db := newAdminSetup(t, testAdminKey)
	require.NoError(t, db.Create(&model.User{Username: "u1", PasswordHash: "x", Status: 1}).Error)

	w := getReq(r, "/api/admin/metrics", "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["total_users"])
	assert.Equal(t, float64(0), resp["online_users"])
}

func TestAdminBanUser(t *testing.T) {
	r, db := newAdminSetup(t, testAdminKey)
	u := model.User{Username: "target", PasswordHash: "x", Status: 1}
	require.NoError(t, db.Create(&u).Error)

	w := postJSON(r, fmt.Sprintf("/api/admin/users/%d/ban", u.ID),
		map[string]bool{"ban": true}, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.User
	require.NoError(t, db.First(&got, u.ID).Error)
	assert.Equal(t, 0, got.Status)

	// Unban restores the account.
	w2 := postJSON(r, fmt.Sprintf("/api/admin/users/%d/ban", u.ID),
		map[string]bool{"ban": false}, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w2.Code)
	require.NoError(t, db.First(&got, u.ID).Error)
	assert.Equal(t, 1, got.Status)
}

func TestAdminBanUser_NotFound(t *testing.T) {
	r, _ := newAdminSetup(t, testAdminKey)
	w := postJSON(r, "/api/admin/users/9999/ban", map[string]bool{"ban": true},
		"X-Admin-Key", testAdminKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminDisconnect_NotOnline(t *testing.T) {
	r, _ := newAdminSetup(t, testAdminKey)
	w := postJSON(r, "/api/admin/users/1/disconnect", nil, "X-Admin-Key", testAdminKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
