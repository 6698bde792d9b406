package clan_test

import (
	"context"
	"testing"
	"time"

	"clanhub/clan"
	"clanhub/model"
	"clanhub/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*clan.Service, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	svc := clan.NewService(db, c, ps, zap.NewNop(), clan.Config{InvitationTTL: time.Hour})
	return svc, db
}

func createUser(t *testing.T, db *gorm.DB, name string) int64 {
	t.Helper()
	u := model.User{Username: name, PasswordHash: "x", Status: 1}
	require.NoError(t, db.Create(&u).Error)
	return u.ID
}

func ctx() context.Context { return context.Background() }

func TestCreate_OwnerAndSystemRoles(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "alice")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Night Watch", Tag: "NW"})
	require.NoError(t, err)
	assert.Equal(t, owner, c.OwnerID)
	assert.Equal(t, model.JoinTypeClosed, c.JoinType)

	var roles []model.ClanRole
	require.NoError(t, db.Where("clan_id = ?", c.ID).Order("power_level DESC").Find(&roles).Error)
	require.Len(t, roles, 2)
	assert.Equal(t, model.PowerOwner, roles[0].PowerLevel)
	assert.True(t, roles[0].IsSystemRole)
	assert.Equal(t, model.PowerDefaultMember, roles[1].PowerLevel)
	assert.True(t, roles[1].IsSystemRole)

	var member model.ClanMember
	require.NoError(t, db.Where("clan_id = ? AND user_id = ?", c.ID, owner).First(&member).Error)
	assert.Equal(t, roles[0].ID, member.RoleID)
}

func TestCreate_DuplicateTag(t *testing.T) {
	svc, db := newTestService(t)
	u1 := createUser(t, db, "alice")
	u2 := createUser(t, db, "bob")

	_, err := svc.Create(ctx(), u1, clan.CreateClanInput{Name: "First", Tag: "DUP"})
	require.NoError(t, err)

	_, err = svc.Create(ctx(), u2, clan.CreateClanInput{Name: "Second", Tag: "DUP"})
	require.Error(t, err)
	assert.Equal(t, clan.KindConflict, clan.KindOf(err))
}

func TestCreate_AlreadyInClan(t *testing.T) {
	svc, db := newTestService(t)
	u := createUser(t, db, "alice")

	_, err := svc.Create(ctx(), u, clan.CreateClanInput{Name: "First", Tag: "A"})
	require.NoError(t, err)

	_, err = svc.Create(ctx(), u, clan.CreateClanInput{Name: "Second", Tag: "B"})
	require.Error(t, err)
	assert.Equal(t, clan.KindConflict, clan.KindOf(err))
}

func TestJoinOpen_SingleMembership(t *testing.T) {
	svc, db := newTestService(t)
	o1 := createUser(t, db, "owner1")
	o2 := createUser(t, db, "owner2")
	joiner := createUser(t, db, "joiner")

	c1, err := svc.Create(ctx(), o1, clan.CreateClanInput{Name: "One", Tag: "C1", JoinType: model.JoinTypeOpen})
	require.NoError(t, err)
	c2, err := svc.Create(ctx(), o2, clan.CreateClanInput{Name: "Two", Tag: "C2", JoinType: model.JoinTypeOpen})
	require.NoError(t, err)

	_, err = svc.JoinOpen(ctx(), c1.ID, joiner)
	require.NoError(t, err)

	// Second join anywhere must conflict and must not create a second row.
	_, err = svc.JoinOpen(ctx(), c2.ID, joiner)
	require.Error(t, err)
	assert.Equal(t, clan.KindConflict, clan.KindOf(err))

	var n int64
	db.Model(&model.ClanMember{}).Where("user_id = ?", joiner).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestJoinOpen_ClosedClanRefused(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	joiner := createUser(t, db, "joiner")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Closed", Tag: "CL"})
	require.NoError(t, err)

	_, err = svc.JoinOpen(ctx(), c.ID, joiner)
	require.Error(t, err)
	assert.Equal(t, clan.KindForbidden, clan.KindOf(err))
}

func TestApplicationRoundTrip(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	applicant := createUser(t, db, "applicant")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Vetted", Tag: "VT", JoinType: model.JoinTypeApplication})
	require.NoError(t, err)
	_, err = svc.UpdateSettings(ctx(), c.ID, owner, clan.UpdateSettingsInput{
		ApplicationTemplate: &[]model.ApplicationField{{Label: "age", Type: "number"}},
	})
	require.NoError(t, err)

	app, err := svc.Apply(ctx(), c.ID, applicant, clan.ApplyInput{Answers: map[string]string{"age": "17"}})
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationPending, app.Status)

	require.NoError(t, svc.HandleApplication(ctx(), app.ID, owner, clan.HandleInput{Status: model.ApplicationAccepted}))

	// The applicant is now a member with the default role.
	var member model.ClanMember
	require.NoError(t, db.Where("clan_id = ? AND user_id = ?", c.ID, applicant).First(&member).Error)
	var role model.ClanRole
	require.NoError(t, db.First(&role, member.RoleID).Error)
	assert.Equal(t, model.PowerDefaultMember, role.PowerLevel)

	require.NoError(t, db.First(&app, app.ID).Error)
	assert.Equal(t, model.ApplicationAccepted, app.Status)
}

func TestApply_AnswerValidation(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	applicant := createUser(t, db, "applicant")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Vetted", Tag: "VT", JoinType: model.JoinTypeApplication})
	require.NoError(t, err)
	_, err = svc.UpdateSettings(ctx(), c.ID, owner, clan.UpdateSettingsInput{
		ApplicationTemplate: &[]model.ApplicationField{{Label: "age", Type: "number"}},
	})
	require.NoError(t, err)

	_, err = svc.Apply(ctx(), c.ID, applicant, clan.ApplyInput{Answers: map[string]string{}})
	require.Error(t, err)
	assert.Equal(t, clan.KindValidation, clan.KindOf(err))

	_, err = svc.Apply(ctx(), c.ID, applicant, clan.ApplyInput{Answers: map[string]string{"age": "17", "extra": "x"}})
	require.Error(t, err)
	assert.Equal(t, clan.KindValidation, clan.KindOf(err))
}

func TestApply_DuplicatePending(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	applicant := createUser(t, db, "applicant")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Vetted", Tag: "VT", JoinType: model.JoinTypeApplication})
	require.NoError(t, err)

	_, err = svc.Apply(ctx(), c.ID, applicant, clan.ApplyInput{Answers: map[string]string{}})
	require.NoError(t, err)

	_, err = svc.Apply(ctx(), c.ID, applicant, clan.ApplyInput{Answers: map[string]string{}})
	require.Error(t, err)
	assert.Equal(t, clan.KindConflict, clan.KindOf(err))
}

func TestHandleApplication_Idempotence(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	applicant := createUser(t, db, "applicant")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Vetted", Tag: "VT", JoinType: model.JoinTypeApplication})
	require.NoError(t, err)
	app, err := svc.Apply(ctx(), c.ID, applicant, clan.ApplyInput{Answers: map[string]string{}})
	require.NoError(t, err)

	require.NoError(t, svc.HandleApplication(ctx(), app.ID, owner, clan.HandleInput{Status: model.ApplicationAccepted}))

	// Second accept must fail as already-processed, not duplicate the member.
	err = svc.HandleApplication(ctx(), app.ID, owner, clan.HandleInput{Status: model.ApplicationAccepted})
	require.Error(t, err)
	assert.Equal(t, clan.KindNotFound, clan.KindOf(err))

	var n int64
	db.Model(&model.ClanMember{}).Where("clan_id = ? AND user_id = ?", c.ID, applicant).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestHandleApplication_ConflictLeavesPending(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	other := createUser(t, db, "other")
	applicant := createUser(t, db, "applicant")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Vetted", Tag: "VT", JoinType: model.JoinTypeApplication})
	require.NoError(t, err)
	app, err := svc.Apply(ctx(), c.ID, applicant, clan.ApplyInput{Answers: map[string]string{}})
	require.NoError(t, err)

	// Applicant joins a different clan before the application is handled.
	open, err := svc.Create(ctx(), other, clan.CreateClanInput{Name: "Open", Tag: "OP", JoinType: model.JoinTypeOpen})
	require.NoError(t, err)
	_, err = svc.JoinOpen(ctx(), open.ID, applicant)
	require.NoError(t, err)

	err = svc.HandleApplication(ctx(), app.ID, owner, clan.HandleInput{Status: model.ApplicationAccepted})
	require.Error(t, err)
	assert.Equal(t, clan.KindConflict, clan.KindOf(err))

	// No silent auto-reject: the application stays pending.
	require.NoError(t, db.First(&app, app.ID).Error)
	assert.Equal(t, model.ApplicationPending, app.Status)
}

func TestTransferOwnership_Atomic(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	heir := createUser(t, db, "heir")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Dynasty", Tag: "DYN", JoinType: model.JoinTypeOpen})
	require.NoError(t, err)
	_, err = svc.JoinOpen(ctx(), c.ID, heir)
	require.NoError(t, err)

	veteran, err := svc.CreateRole(ctx(), c.ID, owner, clan.RoleInput{Name: "Veteran", PowerLevel: 100})
	require.NoError(t, err)

	require.NoError(t, svc.TransferOwnership(ctx(), "DYN", owner, clan.TransferInput{
		NewOwnerID:        heir,
		OldOwnerNewRoleID: veteran.ID,
		ConfirmTag:        "DYN",
	}))

	var got model.Clan
	require.NoError(t, db.First(&got, c.ID).Error)
	assert.Equal(t, heir, got.OwnerID)

	// Exactly one member at owner power; the old owner holds the chosen role.
	var members []model.ClanMember
	require.NoError(t, db.Where("clan_id = ?", c.ID).Find(&members).Error)
	ownerPowerCount := 0
	for _, m := range members {
		var r model.ClanRole
		require.NoError(t, db.First(&r, m.RoleID).Error)
		if r.PowerLevel == model.PowerOwner {
			ownerPowerCount++
			assert.Equal(t, heir, m.UserID)
		}
		if m.UserID == owner {
			assert.Equal(t, veteran.ID, m.RoleID)
		}
	}
	assert.Equal(t, 1, ownerPowerCount)
}

func TestTransferOwnership_PreconditionFailuresMutateNothing(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	heir := createUser(t, db, "heir")
	outsider := createUser(t, db, "outsider")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Dynasty", Tag: "DYN", JoinType: model.JoinTypeOpen})
	require.NoError(t, err)
	_, err = svc.JoinOpen(ctx(), c.ID, heir)
	require.NoError(t, err)
	veteran, err := svc.CreateRole(ctx(), c.ID, owner, clan.RoleInput{Name: "Veteran", PowerLevel: 100})
	require.NoError(t, err)

	var ownerRole model.ClanRole
	require.NoError(t, db.Where("clan_id = ? AND power_level = ?", c.ID, model.PowerOwner).First(&ownerRole).Error)

	snapshot := func() ([]model.ClanMember, model.Clan) {
		var ms []model.ClanMember
		require.NoError(t, db.Where("clan_id = ?", c.ID).Order("id").Find(&ms).Error)
		var cl model.Clan
		require.NoError(t, db.First(&cl, c.ID).Error)
		return ms, cl
	}
	beforeMembers, beforeClan := snapshot()

	cases := []struct {
		name string
		by   int64
		in   clan.TransferInput
		kind clan.Kind
	}{
		{"not owner", heir, clan.TransferInput{NewOwnerID: heir, OldOwnerNewRoleID: veteran.ID, ConfirmTag: "DYN"}, clan.KindForbidden},
		{"wrong confirm tag", owner, clan.TransferInput{NewOwnerID: heir, OldOwnerNewRoleID: veteran.ID, ConfirmTag: "WRONG"}, clan.KindValidation},
		{"target not member", owner, clan.TransferInput{NewOwnerID: outsider, OldOwnerNewRoleID: veteran.ID, ConfirmTag: "DYN"}, clan.KindValidation},
		{"target is owner", owner, clan.TransferInput{NewOwnerID: owner, OldOwnerNewRoleID: veteran.ID, ConfirmTag: "DYN"}, clan.KindValidation},
		{"role too powerful", owner, clan.TransferInput{NewOwnerID: heir, OldOwnerNewRoleID: ownerRole.ID, ConfirmTag: "DYN"}, clan.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.TransferOwnership(ctx(), "DYN", tc.by, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, clan.KindOf(err))

			afterMembers, afterClan := snapshot()
			assert.Equal(t, beforeMembers, afterMembers)
			assert.Equal(t, beforeClan.OwnerID, afterClan.OwnerID)
		})
	}
}

func TestDelete_Cascades(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	member := createUser(t, db, "member")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Doomed", Tag: "DD", JoinType: model.JoinTypeOpen})
	require.NoError(t, err)
	_, err = svc.JoinOpen(ctx(), c.ID, member)
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx(), c.ID, owner, clan.RoleInput{Name: "Extra", PowerLevel: 50})
	require.NoError(t, err)
	_, err = svc.CreateReview(ctx(), c.ID, member, clan.ReviewInput{Rating: 4})
	require.NoError(t, err)

	// Non-owner cannot delete.
	err = svc.Delete(ctx(), "DD", member)
	require.Error(t, err)
	assert.Equal(t, clan.KindForbidden, clan.KindOf(err))

	require.NoError(t, svc.Delete(ctx(), "DD", owner))

	for _, m := range []interface{}{
		&model.ClanMember{}, &model.ClanRole{}, &model.ClanReview{},
		&model.ClanMemberHistory{}, &model.ClanApplication{}, &model.ClanInvitation{},
	} {
		var n int64
		db.Model(m).Where("clan_id = ?", c.ID).Count(&n)
		assert.Zero(t, n)
	}
	var n int64
	db.Model(&model.Clan{}).Where("id = ?", c.ID).Count(&n)
	assert.Zero(t, n)
}

func TestLeave_OwnerBlocked(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")

	_, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Stuck", Tag: "ST"})
	require.NoError(t, err)

	err = svc.Leave(ctx(), owner)
	require.Error(t, err)
	assert.Equal(t, clan.KindForbidden, clan.KindOf(err))
}

func TestLeave_ClosesHistory(t *testing.T) {
	svc, db := newTestService(t)
	owner := createUser(t, db, "owner")
	member := createUser(t, db, "member")

	c, err := svc.Create(ctx(), owner, clan.CreateClanInput{Name: "Open", Tag: "OP", JoinType: model.JoinTypeOpen})
	require.NoError(t, err)
	_, err = svc.JoinOpen(ctx(), c.ID, member)
	require.NoError(t, err)

	require.NoError(t, svc.Leave(ctx(), member))

	var n int64
	db.Model(&model.ClanMember{}).Where("user_id = ?", member).Count(&n)
	assert.Zero(t, n)

	var hist model.ClanMemberHistory
	require.NoError(t, db.Where("clan_id = ? AND user_id = ?", c.ID, member).First(&hist).Error)
	assert.NotNil(t, hist.LeftAt)

	// A former member may still review.
	_, err = svc.CreateReview(ctx(), c.ID, member, clan.ReviewInput{Rating: 5, Text: "good times"})
	require.NoError(t, err)
}
