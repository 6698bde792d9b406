package rest_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"clanhub/api/rest"
	"clanhub/clan"
	mw "clanhub/middleware"
	"clanhub/model"
	"clanhub/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// newClanSetup wires the auth, clan and member endpoints against an in-memory
// DB and local cache, mirroring the route layout in main.go.
func newClanSetup(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	sec := testSec()

	svc := clan.NewService(db, c, ps, zap.NewNop(), clan.Config{
		InvitationTTL:        time.Hour,
		MaxApplicationFields: 5,
		MaxRolesPerClan:      10,
	})

	authH := rest.NewAuthHandler(db, c, sec)
	clanH := rest.NewClanHandler(svc, nil)
	memberH := rest.NewMemberHandler(svc, nil)

	r := gin.New()
	r.POST("/api/auth/register", authH.Register)

	auth := mw.Auth(sec, c)
	clans := r.Group("/api/clans")
	clans.GET("", clanH.List)
	clans.GET("/:tag", clanH.Detail)
	clans.POST("", auth, clanH.Create)
	clans.POST("/leave", auth, memberH.Leave)
	clans.POST("/:tag/join", auth, memberH.Join)
	clans.POST("/:tag/transfer", auth, clanH.Transfer)
	clans.DELETE("/:tag/members/:mid", auth, memberH.Kick)
	return r, db
}

// registerUser creates an account through the register endpoint and returns
// its bearer token and user ID.
func registerUser(t *testing.T, r *gin.Engine, username string) (token string, userID int64) {
	t.Helper()
	w := postJSON(r, "/api/auth/register", map[string]string{"username": username, "password": "pass12345"})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	return resp["token"].(string), int64(resp["user_id"].(float64))
}

func createClan(t *testing.T, r *gin.Engine, token, name, tag, joinType string) {
	t.Helper()
	w := postJSON(r, "/api/clans", map[string]string{
		"name": name, "tag": tag, "join_type": joinType,
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestClanCreate_Success(t *testing.T) {
	r, _ := newClanSetup(t)
	token, _ := registerUser(t, r, "owner")

	createClan(t, r, token, "Night Watch", "NW", "open")

	w := getReq(r, "/api/clans/NW")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "Night Watch", resp["clan"].(map[string]interface{})["name"])
}

func TestClanCreate_AlreadyInClan(t *testing.T) {
	r, _ := newClanSetup(t)
	token, _ := registerUser(t, r, "owner")
	createClan(t, r, token, "First", "ONE", "open")

	w := postJSON(r, "/api/clans", map[string]string{"name": "Second", "tag": "TWO"},
		"Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestClanCreate_DuplicateTag(t *testing.T) {
	r, _ := newClanSetup(t)
	t1, _ := registerUser(t, r, "owner1")
	t2, _ := registerUser(t, r, "owner2")
	createClan(t, r, t1, "First", "SAME", "open")

	w := postJSON(r, "/api/clans", map[string]string{"name": "Second", "tag": "SAME"},
		"Authorization", "Bearer "+t2)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestClanCreate_Unauthenticated(t *testing.T) {
	r, _ := newClanSetup(t)
	w := postJSON(r, "/api/clans", map[string]string{"name": "Ghost", "tag": "GH"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClanDetail_NotFound(t *testing.T) {
	r, _ := newClanSetup(t)
	w := getReq(r, "/api/clans/NOPE")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClanJoin_OpenAndLeave(t *testing.T) {
	r, _ := newClanSetup(t)
	ownerTok, _ := registerUser(t, r, "owner")
	memberTok, _ := registerUser(t, r, "joiner")
	createClan(t, r, ownerTok, "Open Clan", "OPEN", "open")

	w := postJSON(r, "/api/clans/OPEN/join", nil, "Authorization", "Bearer "+memberTok)
	require.Equal(t, http.StatusCreated, w.Code)

	// A second join attempt conflicts with the existing membership.
	w2 := postJSON(r, "/api/clans/OPEN/join", nil, "Authorization", "Bearer "+memberTok)
	assert.Equal(t, http.StatusConflict, w2.Code)

	w3 := postJSON(r, "/api/clans/leave", nil, "Authorization", "Bearer "+memberTok)
	assert.Equal(t, http.StatusOK, w3.Code)
}

func TestClanJoin_ApplicationOnly(t *testing.T) {
	r, _ := newClanSetup(t)
	ownerTok, _ := registerUser(t, r, "owner")
	memberTok, _ := registerUser(t, r, "applicant")
	createClan(t, r, ownerTok, "Gated", "GATE", "application")

	w := postJSON(r, "/api/clans/GATE/join", nil, "Authorization", "Bearer "+memberTok)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestClanLeave_OwnerBlocked(t *testing.T) {
	r, _ := newClanSetup(t)
	ownerTok, _ := registerUser(t, r, "owner")
	createClan(t, r, ownerTok, "Mine", "MINE", "open")

	w := postJSON(r, "/api/clans/leave", nil, "Authorization", "Bearer "+ownerTok)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestClanKick_OwnerKicksMember(t *testing.T) {
	r, db := newClanSetup(t)
	ownerTok, _ := registerUser(t, r, "owner")
	memberTok, memberID := registerUser(t, r, "victim")
	createClan(t, r, ownerTok, "Kickers", "KICK", "open")
	require.Equal(t, http.StatusCreated,
		postJSON(r, "/api/clans/KICK/join", nil, "Authorization", "Bearer "+memberTok).Code)

	var m model.ClanMember
	require.NoError(t, db.Where("user_id = ?", memberID).First(&m).Error)

	w := deleteReq(r, fmt.Sprintf("/api/clans/KICK/members/%d", m.ID),
		"Authorization", "Bearer "+ownerTok)
	assert.Equal(t, http.StatusOK, w.Code)

	err := db.Where("user_id = ?", memberID).First(&model.ClanMember{}).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestClanKick_MemberCannotKickOwner(t *testing.T) {
	r, db := newClanSetup(t)
	ownerTok, ownerID := registerUser(t, r, "owner")
	memberTok, _ := registerUser(t, r, "upstart")
	createClan(t, r, ownerTok, "Stable", "STAB", "open")
	require.Equal(t, http.StatusCreated,
		postJSON(r, "/api/clans/STAB/join", nil, "Authorization", "Bearer "+memberTok).Code)

	var ownerMember model.ClanMember
	require.NoError(t, db.Where("user_id = ?", ownerID).First(&ownerMember).Error)

	w := deleteReq(r, fmt.Sprintf("/api/clans/STAB/members/%d", ownerMember.ID),
		"Authorization", "Bearer "+memberTok)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestClanTransfer_WrongConfirmTag(t *testing.T) {
	r, db := newClanSetup(t)
	ownerTok, _ := registerUser(t, r, "owner")
	memberTok, memberID := registerUser(t, r, "heir")
	createClan(t, r, ownerTok, "Dynasty", "DYN", "open")
	require.Equal(t, http.StatusCreated,
		postJSON(r, "/api/clans/DYN/join", nil, "Authorization", "Bearer "+memberTok).Code)

	var role model.ClanRole
	require.NoError(t, db.Where("power_level = ?", model.PowerDefaultMember).First(&role).Error)

	w := postJSON(r, "/api/clans/DYN/transfer", map[string]interface{}{
		"new_owner_id":          memberID,
		"old_owner_new_role_id": role.ID,
		"confirm_tag":           "WRONG",
	}, "Authorization", "Bearer "+ownerTok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClanList_Pagination(t *testing.T) {
	r, _ := newClanSetup(t)
	for i := 0; i < 3; i++ {
		tok, _ := registerUser(t, r, fmt.Sprintf("owner%d", i))
		createClan(t, r, tok, fmt.Sprintf("Clan %d", i), fmt.Sprintf("TAG%d", i), "open")
	}

	w := getReq(r, "/api/clans?page=1&page_size=2")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(3), resp["total"])
	assert.Len(t, resp["clans"], 2)
}
