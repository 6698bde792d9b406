package clan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clanhub/cache"
	"clanhub/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config holds the clan service tunables.
type Config struct {
	InvitationTTL        time.Duration
	MaxApplicationFields int
	MaxRolesPerClan      int
}

// Realtime event types published to user channels.
const (
	EventInvited              = "clan_invited"
	EventApplicationHandled   = "application_handled"
	EventKicked               = "clan_kicked"
	EventWarned               = "clan_warned"
	EventOwnershipTransferred = "ownership_transferred"
	EventClanDeleted          = "clan_deleted"
)

// UserChannel is the pub/sub channel carrying notifications for one user.
func UserChannel(userID int64) string { return fmt.Sprintf("user:%d", userID) }

// ClanChannel is the pub/sub channel for a clan's general chat.
func ClanChannel(clanID int64) string { return fmt.Sprintf("clan:%d", clanID) }

// ClanAdminChannel is the pub/sub channel for a clan's admin chat.
func ClanAdminChannel(clanID int64) string { return fmt.Sprintf("clan:%d:admin", clanID) }

// ratingsKey is the cache zset ranking clans by average review rating.
const ratingsKey = "clan:ratings"

// Service implements the clan/role/membership/application/invitation state
// machine on top of gorm. All multi-row mutations run inside transactions;
// unique indexes are the final arbiter for races the pre-checks miss.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	ps     cache.PubSub
	logger *zap.Logger
	cfg    Config
}

// NewService creates a clan Service.
func NewService(db *gorm.DB, c cache.Cache, ps cache.PubSub, logger *zap.Logger, cfg Config) *Service {
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = 48 * time.Hour
	}
	if cfg.MaxApplicationFields <= 0 {
		cfg.MaxApplicationFields = 10
	}
	if cfg.MaxRolesPerClan <= 0 {
		cfg.MaxRolesPerClan = 20
	}
	return &Service{db: db, cache: c, ps: ps, logger: logger, cfg: cfg}
}

// CreateClanInput is the payload for Create.
type CreateClanInput struct {
	Name        string `json:"name" binding:"required,min=2,max=100"`
	Tag         string `json:"tag" binding:"required,min=2,max=50"`
	Description string `json:"description" binding:"max=2000"`
	JoinType    string `json:"join_type" binding:"omitempty,oneof=open application closed"`
}

// Create makes a new clan owned by ownerID. The owner must not belong to any
// clan. The clan, its two system roles and the owner's membership are created
// in one transaction.
func (s *Service) Create(ctx context.Context, ownerID int64, in CreateClanInput) (*model.Clan, error) {
	if m, _ := s.membershipOf(ownerID); m != nil {
		return nil, Conflictf("you already belong to a clan")
	}

	joinType := in.JoinType
	if joinType == "" {
		joinType = model.JoinTypeClosed
	}

	clan := model.Clan{
		Name:        in.Name,
		Tag:         in.Tag,
		Description: in.Description,
		JoinType:    joinType,
		OwnerID:     ownerID,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&clan).Error; err != nil {
			return err
		}
		ownerRole := model.ClanRole{
			ClanID:       clan.ID,
			Name:         "Owner",
			Color:        "#E6B800",
			PowerLevel:   model.PowerOwner,
			Permissions:  model.OwnerRolePermissions(),
			IsSystemRole: true,
		}
		if err := tx.Create(&ownerRole).Error; err != nil {
			return err
		}
		memberRole := model.ClanRole{
			ClanID:       clan.ID,
			Name:         "Member",
			Color:        "#AAAAAA",
			PowerLevel:   model.PowerDefaultMember,
			IsSystemRole: true,
		}
		if err := tx.Create(&memberRole).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.ClanMember{
			ClanID: clan.ID,
			UserID: ownerID,
			RoleID: ownerRole.ID,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&model.ClanMemberHistory{ClanID: clan.ID, UserID: ownerID}).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, Conflictf("clan tag already taken")
		}
		return nil, err
	}

	s.logger.Info("clan created",
		zap.Int64("clan_id", clan.ID), zap.String("tag", clan.Tag), zap.Int64("owner_id", ownerID))
	return &clan, nil
}

// ClanSummary is one row of the clan listing.
type ClanSummary struct {
	model.Clan
	MemberCount int64 `json:"member_count"`
}

// List returns a page of clans matching the optional search term (name or
// tag, case-insensitive substring).
func (s *Service) List(ctx context.Context, page, pageSize int, search string) ([]ClanSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	q := s.db.Model(&model.Clan{})
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("name LIKE ? OR tag LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var clans []model.Clan
	if err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&clans).Error; err != nil {
		return nil, 0, err
	}

	out := make([]ClanSummary, 0, len(clans))
	for _, cl := range clans {
		var n int64
		s.db.Model(&model.ClanMember{}).Where("clan_id = ?", cl.ID).Count(&n)
		out = append(out, ClanSummary{Clan: cl, MemberCount: n})
	}
	return out, total, nil
}

// TopRated returns up to n clan tags ordered by average review rating.
func (s *Service) TopRated(ctx context.Context, n int) ([]string, error) {
	if n < 1 {
		n = 10
	}
	return s.cache.ZRevRange(ctx, ratingsKey, 0, int64(n-1))
}

// ResolveTag returns the clan identified by tag. Used by the HTTP layer to
// turn tag-addressed routes into clan IDs.
func (s *Service) ResolveTag(ctx context.Context, tag string) (*model.Clan, error) {
	return s.clanByTag(tag)
}

// MemberView is one member row in a clan detail response.
type MemberView struct {
	MemberID  int64          `json:"member_id"`
	UserID    int64          `json:"user_id"`
	Username  string         `json:"username"`
	AvatarURL string         `json:"avatar_url"`
	Role      model.ClanRole `json:"role"`
	IsMuted   bool           `json:"is_muted"`
	JoinedAt  time.Time      `json:"joined_at"`
}

// ClanDetail is the full clan page payload.
type ClanDetail struct {
	Clan            model.Clan   `json:"clan"`
	Members         []MemberView `json:"members"`
	MemberCount     int          `json:"member_count"`
	ViewerWasMember bool         `json:"viewer_was_member"`
}

// Find returns a clan by tag with its members sorted by role power
// descending. viewerID may be 0 for anonymous viewers.
func (s *Service) Find(ctx context.Context, tag string, viewerID int64) (*ClanDetail, error) {
	clan, err := s.clanByTag(tag)
	if err != nil {
		return nil, err
	}

	members, err := s.memberViews(clan.ID)
	if err != nil {
		return nil, err
	}

	detail := &ClanDetail{Clan: *clan, Members: members, MemberCount: len(members)}
	if viewerID != 0 {
		var n int64
		s.db.Model(&model.ClanMemberHistory{}).
			Where("clan_id = ? AND user_id = ?", clan.ID, viewerID).Count(&n)
		detail.ViewerWasMember = n > 0
	}
	return detail, nil
}

// ManagementData is the payload behind the clan management screen: the
// detail plus roles and pending applications. Requires membership with any
// management toggle.
type ManagementData struct {
	Detail       ClanDetail              `json:"detail"`
	Roles        []model.ClanRole        `json:"roles"`
	Applications []model.ClanApplication `json:"applications"`
}

// Management returns the management view of the clan identified by tag.
func (s *Service) Management(ctx context.Context, tag string, actorID int64) (*ManagementData, error) {
	clan, err := s.clanByTag(tag)
	if err != nil {
		return nil, err
	}
	_, role, err := s.memberWithRole(clan.ID, actorID)
	if err != nil {
		return nil, err
	}
	p := role.Permissions.ClanPermissions
	if !(p.CanEditDetails || p.CanEditAppearance || p.CanEditRoles ||
		p.CanEditApplicationForm || p.CanAcceptMembers || p.CanInviteMembers) {
		return nil, Forbiddenf("no management permission")
	}

	detail, err := s.Find(ctx, tag, actorID)
	if err != nil {
		return nil, err
	}

	var roles []model.ClanRole
	if err := s.db.Where("clan_id = ?", clan.ID).Order("power_level DESC").Find(&roles).Error; err != nil {
		return nil, err
	}
	var apps []model.ClanApplication
	if err := s.db.Where("clan_id = ? AND status = ?", clan.ID, model.ApplicationPending).
		Order("created_at ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return &ManagementData{Detail: *detail, Roles: roles, Applications: apps}, nil
}

// UpdateDetailsInput carries optional clan detail edits. Appearance fields
// additionally require the canEditAppearance toggle.
type UpdateDetailsInput struct {
	Name         *string `json:"name" binding:"omitempty,min=2,max=100"`
	Description  *string `json:"description" binding:"omitempty,max=2000"`
	CardImageURL *string `json:"card_image_url" binding:"omitempty,max=255"`
	CardIconURL  *string `json:"card_icon_url" binding:"omitempty,max=255"`
	CardColor    *string `json:"card_color" binding:"omitempty,hexcolor"`
	TextColor    *string `json:"text_color" binding:"omitempty,hexcolor"`
}

func (in *UpdateDetailsInput) touchesAppearance() bool {
	return in.CardImageURL != nil || in.CardIconURL != nil ||
		in.CardColor != nil || in.TextColor != nil
}

// UpdateDetails edits a clan's display fields.
func (s *Service) UpdateDetails(ctx context.Context, tag string, actorID int64, in UpdateDetailsInput) (*model.Clan, error) {
	clan, err := s.clanByTag(tag)
	if err != nil {
		return nil, err
	}
	_, role, err := s.memberWithRole(clan.ID, actorID)
	if err != nil {
		return nil, err
	}
	if !HasClanPermission(role, PermEditDetails) {
		return nil, Forbiddenf("missing permission: %s", PermEditDetails)
	}
	if in.touchesAppearance() && !HasClanPermission(role, PermEditAppearance) {
		return nil, Forbiddenf("missing permission: %s", PermEditAppearance)
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.CardImageURL != nil {
		updates["card_image_url"] = *in.CardImageURL
	}
	if in.CardIconURL != nil {
		updates["card_icon_url"] = *in.CardIconURL
	}
	if in.CardColor != nil {
		updates["card_color"] = *in.CardColor
	}
	if in.TextColor != nil {
		updates["text_color"] = *in.TextColor
	}
	if len(updates) == 0 {
		return clan, nil
	}
	if err := s.db.Model(clan).Updates(updates).Error; err != nil {
		return nil, err
	}
	return clan, nil
}

// UpdateSettingsInput carries join-policy edits.
type UpdateSettingsInput struct {
	JoinType            *string                   `json:"join_type" binding:"omitempty,oneof=open application closed"`
	ApplicationTemplate *[]model.ApplicationField `json:"application_template" binding:"omitempty,dive"`
}

// UpdateSettings edits the clan's join type and application template.
func (s *Service) UpdateSettings(ctx context.Context, clanID, actorID int64, in UpdateSettingsInput) (*model.Clan, error) {
	clan, err := s.clanByID(clanID)
	if err != nil {
		return nil, err
	}
	_, role, err := s.memberWithRole(clan.ID, actorID)
	if err != nil {
		return nil, err
	}
	if !HasClanPermission(role, PermEditApplicationForm) {
		return nil, Forbiddenf("missing permission: %s", PermEditApplicationForm)
	}

	if in.JoinType != nil {
		clan.JoinType = *in.JoinType
	}
	if in.ApplicationTemplate != nil {
		if len(*in.ApplicationTemplate) > s.cfg.MaxApplicationFields {
			return nil, Invalidf("application_template cannot exceed %d questions", s.cfg.MaxApplicationFields)
		}
		clan.ApplicationTemplate = *in.ApplicationTemplate
	}
	if err := s.db.Save(clan).Error; err != nil {
		return nil, err
	}
	return clan, nil
}

// TransferInput is the payload for TransferOwnership. ConfirmTag is the
// clan's tag re-typed by the caller as a UI safety gate.
type TransferInput struct {
	NewOwnerID        int64  `json:"new_owner_id" binding:"required"`
	OldOwnerNewRoleID int64  `json:"old_owner_new_role_id" binding:"required"`
	ConfirmTag        string `json:"confirm_tag" binding:"required"`
}

// TransferOwnership atomically re-assigns clan ownership. Exactly one member
// holds the owner-power role afterwards; on any precondition failure nothing
// is mutated.
func (s *Service) TransferOwnership(ctx context.Context, tag string, actorID int64, in TransferInput) error {
	clan, err := s.clanByTag(tag)
	if err != nil {
		return err
	}
	if clan.OwnerID != actorID {
		return Forbiddenf("only the clan owner can transfer ownership")
	}
	if in.ConfirmTag != clan.Tag {
		return Invalidf("confirmation text does not match clan tag")
	}
	if in.NewOwnerID == actorID {
		return Invalidf("new owner must be a different member")
	}

	var newOwnerMember model.ClanMember
	if err := s.db.Where("clan_id = ? AND user_id = ?", clan.ID, in.NewOwnerID).
		First(&newOwnerMember).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Invalidf("new owner is not a member of this clan")
		}
		return err
	}

	var newRole model.ClanRole
	if err := s.db.Where("id = ? AND clan_id = ?", in.OldOwnerNewRoleID, clan.ID).
		First(&newRole).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Invalidf("old_owner_new_role_id does not belong to this clan")
		}
		return err
	}
	if newRole.PowerLevel >= model.PowerOwner {
		return Invalidf("outgoing owner may not keep owner-level power")
	}

	var ownerRole model.ClanRole
	if err := s.db.Where("clan_id = ? AND power_level = ?", clan.ID, model.PowerOwner).
		First(&ownerRole).Error; err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.ClanMember{}).
			Where("clan_id = ? AND user_id = ?", clan.ID, actorID).
			Update("role_id", newRole.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.ClanMember{}).
			Where("id = ?", newOwnerMember.ID).
			Update("role_id", ownerRole.ID).Error; err != nil {
			return err
		}
		return tx.Model(&model.Clan{}).Where("id = ?", clan.ID).
			Update("owner_id", in.NewOwnerID).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("ownership transferred",
		zap.Int64("clan_id", clan.ID), zap.Int64("from", actorID), zap.Int64("to", in.NewOwnerID))
	s.notify(ctx, in.NewOwnerID, EventOwnershipTransferred, map[string]interface{}{
		"clan_id": clan.ID, "clan_tag": clan.Tag,
	})
	return nil
}

// Delete removes a clan and every dependent row in one transaction. Owner
// only. Cascade order mirrors the FK dependency graph.
func (s *Service) Delete(ctx context.Context, tag string, actorID int64) error {
	clan, err := s.clanByTag(tag)
	if err != nil {
		return err
	}
	if clan.OwnerID != actorID {
		return Forbiddenf("only the clan owner can delete the clan")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&model.ClanMessage{},
			&model.ClanWarning{},
			&model.ClanReview{},
			&model.ClanApplication{},
			&model.ClanInvitation{},
			&model.ClanMemberHistory{},
			&model.ClanMember{},
			&model.ClanRole{},
		} {
			if err := tx.Where("clan_id = ?", clan.ID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Clan{}, clan.ID).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("clan deleted", zap.Int64("clan_id", clan.ID), zap.String("tag", clan.Tag))
	s.publish(ctx, ClanChannel(clan.ID), EventClanDeleted, map[string]interface{}{"clan_id": clan.ID})
	return nil
}

// ---- internal helpers ----

func (s *Service) clanByTag(tag string) (*model.Clan, error) {
	var clan model.Clan
	if err := s.db.Where("tag = ?", tag).First(&clan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("clan not found")
		}
		return nil, err
	}
	return &clan, nil
}

func (s *Service) clanByID(id int64) (*model.Clan, error) {
	var clan model.Clan
	if err := s.db.First(&clan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("clan not found")
		}
		return nil, err
	}
	return &clan, nil
}

// membershipOf returns the user's membership in any clan, or nil.
func (s *Service) membershipOf(userID int64) (*model.ClanMember, error) {
	var m model.ClanMember
	if err := s.db.Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// memberWithRole loads the user's membership in the given clan plus the role
// it references. Returns a forbidden error for non-members.
func (s *Service) memberWithRole(clanID, userID int64) (*model.ClanMember, *model.ClanRole, error) {
	var m model.ClanMember
	if err := s.db.Where("clan_id = ? AND user_id = ?", clanID, userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, Forbiddenf("not a member of this clan")
		}
		return nil, nil, err
	}
	var role model.ClanRole
	if err := s.db.First(&role, m.RoleID).Error; err != nil {
		return nil, nil, err
	}
	return &m, &role, nil
}

// memberByID loads a membership row by its id within a clan. Stale ids get a
// not-found, which doubles as the "loser" outcome of concurrent kicks.
func (s *Service) memberByID(clanID, memberID int64) (*model.ClanMember, *model.ClanRole, error) {
	var m model.ClanMember
	if err := s.db.Where("id = ? AND clan_id = ?", memberID, clanID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, NotFoundf("member not found")
		}
		return nil, nil, err
	}
	var role model.ClanRole
	if err := s.db.First(&role, m.RoleID).Error; err != nil {
		return nil, nil, err
	}
	return &m, &role, nil
}

// systemRole finds the clan's system role at the given power level.
func (s *Service) systemRole(tx *gorm.DB, clanID int64, power int) (*model.ClanRole, error) {
	var role model.ClanRole
	if err := tx.Where("clan_id = ? AND is_system_role = ? AND power_level = ?",
		clanID, true, power).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *Service) memberViews(clanID int64) ([]MemberView, error) {
	var members []model.ClanMember
	if err := s.db.Where("clan_id = ?", clanID).Find(&members).Error; err != nil {
		return nil, err
	}

	roles := map[int64]model.ClanRole{}
	var roleRows []model.ClanRole
	if err := s.db.Where("clan_id = ?", clanID).Order("power_level DESC").Find(&roleRows).Error; err != nil {
		return nil, err
	}
	for _, r := range roleRows {
		roles[r.ID] = r
	}

	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		var u model.User
		if err := s.db.First(&u, m.UserID).Error; err != nil {
			continue
		}
		views = append(views, MemberView{
			MemberID:  m.ID,
			UserID:    m.UserID,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Role:      roles[m.RoleID],
			IsMuted:   m.IsMuted,
			JoinedAt:  m.JoinedAt,
		})
	}
	// sort by role power desc, stable on join order
	for i := 1; i < len(views); i++ {
		for j := i; j > 0 && views[j].Role.PowerLevel > views[j-1].Role.PowerLevel; j-- {
			views[j], views[j-1] = views[j-1], views[j]
		}
	}
	return views, nil
}

// notify publishes a typed event to one user's channel. Best-effort: failures
// are logged, not returned.
func (s *Service) notify(ctx context.Context, userID int64, typ string, data map[string]interface{}) {
	s.publish(ctx, UserChannel(userID), typ, data)
}

func (s *Service) publish(ctx context.Context, channel, typ string, data map[string]interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"type": typ, "data": data})
	if err != nil {
		return
	}
	if err := s.ps.Publish(ctx, channel, string(payload)); err != nil {
		s.logger.Warn("publish failed", zap.String("channel", channel), zap.Error(err))
	}
}
