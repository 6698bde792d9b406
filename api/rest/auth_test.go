package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clanhub/api/rest"
	"clanhub/cache"
	"clanhub/config"
	mw "clanhub/middleware"
	"clanhub/model"
	"clanhub/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testSec() config.SecurityConfig {
	return config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getReq(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func putJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func deleteReq(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func newAuthRouter(t *testing.T) (*gin.Engine, *gorm.DB, cache.Cache) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	sec := testSec()

	authH := rest.NewAuthHandler(db, c, sec)
	r := gin.New()
	r.POST("/api/auth/register", authH.Register)
	r.POST("/api/auth/login", authH.Login)
	auth := mw.Auth(sec, c)
	r.POST("/api/auth/logout", auth, authH.Logout)
	r.POST("/api/auth/refresh", auth, authH.Refresh)
	r.GET("/api/auth/me", auth, authH.Me)
	return r, db, c
}

func TestRegister_Success(t *testing.T) {
	r, _, _ := newAuthRouter(t)

	w := postJSON(r, "/api/auth/register", map[string]string{"username": "alice", "password": "pass12345"})
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode(t, w)
	assert.NotEmpty(t, resp["token"])
	assert.NotZero(t, resp["user_id"])
}

func TestRegister_DuplicateUsername(t *testing.T) {
	r, _, _ := newAuthRouter(t)

	w := postJSON(r, "/api/auth/register", map[string]string{"username": "alice", "password": "pass12345"})
	require.Equal(t, http.StatusCreated, w.Code)

	w2 := postJSON(r, "/api/auth/register", map[string]string{"username": "alice", "password": "otherpass9"})
	assert.Equal(t, http.StatusConflict, w2.Code)
}

func TestRegister_ShortPassword(t *testing.T) {
	r, _, _ := newAuthRouter(t)

	w := postJSON(r, "/api/auth/register", map[string]string{"username": "alice", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_Success(t *testing.T) {
	r, _, _ := newAuthRouter(t)
	postJSON(r, "/api/auth/register", map[string]string{"username": "bob", "password": "pass12345"})

	w := postJSON(r, "/api/auth/login", map[string]string{"username": "bob", "password": "pass12345"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.NotEmpty(t, resp["token"])
}

func TestLogin_WrongPassword(t *testing.T) {
	r, _, _ := newAuthRouter(t)
	postJSON(r, "/api/auth/register", map[string]string{"username": "bob", "password": "pass12345"})

	w := postJSON(r, "/api/auth/login", map[string]string{"username": "bob", "password": "wrongpass1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_UnknownUser(t *testing.T) {
	r, _, _ := newAuthRouter(t)

	w := postJSON(r, "/api/auth/login", map[string]string{"username": "nobody", "password": "pass12345"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_Banned(t *testing.T) {
	r, db, _ := newAuthRouter(t)
	w := postJSON(r, "/api/auth/register", map[string]string{"username": "badguy", "password": "pass12345"})
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, db.Model(&model.User{}).Where("username = ?", "badguy").Update("status", 0).Error)

	w2 := postJSON(r, "/api/auth/login", map[string]string{"username": "badguy", "password": "pass12345"})
	assert.Equal(t, http.StatusForbidden, w2.Code)
}

func TestLogout_InvalidatesSession(t *testing.T) {
	r, _, _ := newAuthRouter(t)
	w := postJSON(r, "/api/auth/register", map[string]string{"username": "carol", "password": "pass12345"})
	token := decode(t, w)["token"].(string)

	w2 := getReq(r, "/api/auth/me", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w2.Code)

	w3 := postJSON(r, "/api/auth/logout", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w3.Code)

	w4 := getReq(r, "/api/auth/me", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w4.Code)
}

func TestRefresh_RotatesToken(t *testing.T) {
	r, _, _ := newAuthRouter(t)
	w := postJSON(r, "/api/auth/register", map[string]string{"username": "dave", "password": "pass12345"})
	oldToken := decode(t, w)["token"].(string)

	w2 := postJSON(r, "/api/auth/refresh", nil, "Authorization", "Bearer "+oldToken)
	require.Equal(t, http.StatusOK, w2.Code)
	newToken := decode(t, w2)["token"].(string)
	require.NotEmpty(t, newToken)

	// Old token is invalidated, the new one works.
	assert.Equal(t, http.StatusUnauthorized, getReq(r, "/api/auth/me", "Authorization", "Bearer "+oldToken).Code)
	assert.Equal(t, http.StatusOK, getReq(r, "/api/auth/me", "Authorization", "Bearer "+newToken).Code)
}

func TestMe_ReturnsProfile(t *testing.T) {
	r, _, _ := newAuthRouter(t)
	w := postJSON(r, "/api/auth/register", map[string]string{"username": "eve", "password": "pass12345"})
	token := decode(t, w)["token"].(string)

	w2 := getReq(r, "/api/auth/me", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w2.Code)
	resp := decode(t, w2)
	assert.Equal(t, "eve", resp["username"])
}
