package clan

import (
	"context"
	"errors"
	"time"

	"clanhub/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JoinOpen adds the user to an open clan with the default Member role.
// The unique index on clan_members.user_id settles concurrent double-joins.
func (s *Service) JoinOpen(ctx context.Context, clanID, userID int64) (*model.ClanMember, error) {
	clan, err := s.clanByID(clanID)
	if err != nil {
		return nil, err
	}
	if clan.JoinType != model.JoinTypeOpen {
		return nil, Forbiddenf("clan does not accept direct joins")
	}
	if m, _ := s.membershipOf(userID); m != nil {
		return nil, Conflictf("you already belong to a clan")
	}

	var member model.ClanMember
	err = s.db.Transaction(func(tx *gorm.DB) error {
		defaultRole, err := s.systemRole(tx, clan.ID, model.PowerDefaultMember)
		if err != nil {
			return err
		}
		member = model.ClanMember{ClanID: clan.ID, UserID: userID, RoleID: defaultRole.ID}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		return tx.Create(&model.ClanMemberHistory{ClanID: clan.ID, UserID: userID}).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, Conflictf("you already belong to a clan")
		}
		return nil, err
	}
	return &member, nil
}

// Leave removes the caller's membership. The owner must transfer ownership
// first.
func (s *Service) Leave(ctx context.Context, userID int64) error {
	member, err := s.membershipOf(userID)
	if err != nil {
		return err
	}
	if member == nil {
		return NotFoundf("you are not in a clan")
	}
	clan, err := s.clanByID(member.ClanID)
	if err != nil {
		return err
	}
	if clan.OwnerID == userID {
		return Forbiddenf("the owner must transfer ownership before leaving")
	}
	return s.removeMember(member)
}

// Kick removes another member. Gated by maxKickPower; the owner cannot be
// kicked; a member that vanished under a concurrent kick yields not-found.
func (s *Service) Kick(ctx context.Context, clanID, actorID, targetMemberID int64) error {
	clan, err := s.clanByID(clanID)
	if err != nil {
		return err
	}
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return err
	}
	target, targetRole, err := s.memberByID(clanID, targetMemberID)
	if err != nil {
		return err
	}
	if target.UserID == actorID {
		return Invalidf("you cannot kick yourself")
	}
	if target.UserID == clan.OwnerID {
		return Forbiddenf("the owner cannot be kicked")
	}
	if err := CanActOn(actorRole, targetRole, actorRole.Permissions.MemberPermissions.MaxKickPower); err != nil {
		return err
	}

	if err := s.removeMember(target); err != nil {
		return err
	}
	s.logger.Info("member kicked",
		zap.Int64("clan_id", clanID), zap.Int64("actor_id", actorID), zap.Int64("target_user_id", target.UserID))
	s.notify(ctx, target.UserID, EventKicked, map[string]interface{}{
		"clan_id": clanID, "clan_tag": clan.Tag,
	})
	return nil
}

// removeMember deletes the membership and closes its history row.
func (s *Service) removeMember(member *model.ClanMember) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.ClanMember{}, member.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NotFoundf("member not found")
		}
		now := time.Now()
		return tx.Model(&model.ClanMemberHistory{}).
			Where("clan_id = ? AND user_id = ? AND left_at IS NULL", member.ClanID, member.UserID).
			Update("left_at", now).Error
	})
}

// ChangeRoleInput is the payload for ChangeMemberRole.
type ChangeRoleInput struct {
	RoleID int64 `json:"role_id" binding:"required"`
}

// ChangeMemberRole assigns a different role to a member. The Owner role is
// unassignable; promotions and demotions are bounded by the actor's
// maxPromotePower / maxDemotePower.
func (s *Service) ChangeMemberRole(ctx context.Context, clanID, actorID, targetMemberID int64, in ChangeRoleInput) error {
	clan, err := s.clanByID(clanID)
	if err != nil {
		return err
	}
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return err
	}
	target, targetRole, err := s.memberByID(clanID, targetMemberID)
	if err != nil {
		return err
	}
	if target.UserID == actorID {
		return Invalidf("you cannot change your own role")
	}
	if target.UserID == clan.OwnerID {
		return Forbiddenf("the owner's role cannot be changed")
	}

	var newRole model.ClanRole
	if err := s.db.Where("id = ? AND clan_id = ?", in.RoleID, clanID).First(&newRole).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Invalidf("role does not belong to this clan")
		}
		return err
	}
	if newRole.PowerLevel >= model.PowerOwner {
		return Forbiddenf("the Owner role cannot be assigned")
	}
	if newRole.PowerLevel >= actorRole.PowerLevel {
		return Forbiddenf("you cannot assign a role that outranks or equals yours")
	}

	mp := actorRole.Permissions.MemberPermissions
	if newRole.PowerLevel > targetRole.PowerLevel {
		// promotion
		if err := CanActOn(actorRole, targetRole, mp.MaxPromotePower); err != nil {
			return err
		}
		if newRole.PowerLevel > mp.MaxPromotePower {
			return Forbiddenf("new role power %d exceeds your promote limit %d", newRole.PowerLevel, mp.MaxPromotePower)
		}
	} else {
		if err := CanActOn(actorRole, targetRole, mp.MaxDemotePower); err != nil {
			return err
		}
	}

	return s.db.Model(&model.ClanMember{}).Where("id = ?", target.ID).
		Update("role_id", newRole.ID).Error
}

// WarnInput is the payload for Warn.
type WarnInput struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// Warn issues a warning against another member. Gated by maxWarnPower.
func (s *Service) Warn(ctx context.Context, clanID, actorID, targetMemberID int64, in WarnInput) (*model.ClanWarning, error) {
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return nil, err
	}
	target, targetRole, err := s.memberByID(clanID, targetMemberID)
	if err != nil {
		return nil, err
	}
	if target.UserID == actorID {
		return nil, Invalidf("you cannot warn yourself")
	}
	if err := CanActOn(actorRole, targetRole, actorRole.Permissions.MemberPermissions.MaxWarnPower); err != nil {
		return nil, err
	}

	w := model.ClanWarning{ClanID: clanID, ActorID: actorID, TargetID: target.UserID, Reason: in.Reason}
	if err := s.db.Create(&w).Error; err != nil {
		return nil, err
	}
	s.notify(ctx, target.UserID, EventWarned, map[string]interface{}{
		"clan_id": clanID, "reason": in.Reason,
	})
	return &w, nil
}

// Warnings lists a clan's warnings. Moderation-tier access: requires a
// non-zero maxWarnPower.
func (s *Service) Warnings(ctx context.Context, clanID, actorID int64) ([]model.ClanWarning, error) {
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return nil, err
	}
	if actorRole.Permissions.MemberPermissions.MaxWarnPower <= 0 {
		return nil, Forbiddenf("no warning access")
	}
	var warnings []model.ClanWarning
	if err := s.db.Where("clan_id = ?", clanID).Order("created_at DESC").Find(&warnings).Error; err != nil {
		return nil, err
	}
	return warnings, nil
}

// DeleteWarning revokes a warning. If the target is still a member the actor
// must outrank them and their role power must sit within the actor's
// maxWarnPower; a departed target counts as power 0.
func (s *Service) DeleteWarning(ctx context.Context, clanID, actorID, warningID int64) error {
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return err
	}
	mp := actorRole.Permissions.MemberPermissions
	if mp.MaxWarnPower <= 0 {
		return Forbiddenf("no warning access")
	}

	var w model.ClanWarning
	if err := s.db.Where("id = ? AND clan_id = ?", warningID, clanID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundf("warning not found")
		}
		return err
	}

	var target model.ClanMember
	err = s.db.Where("clan_id = ? AND user_id = ?", clanID, w.TargetID).First(&target).Error
	if err == nil {
		var targetRole model.ClanRole
		if err := s.db.First(&targetRole, target.RoleID).Error; err != nil {
			return err
		}
		if err := CanActOn(actorRole, &targetRole, mp.MaxWarnPower); err != nil {
			return err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return s.db.Delete(&w).Error
}

// MyWarnings lists every warning issued against the caller, across clans.
func (s *Service) MyWarnings(ctx context.Context, userID int64) ([]model.ClanWarning, error) {
	var warnings []model.ClanWarning
	if err := s.db.Where("target_id = ?", userID).Order("created_at DESC").Find(&warnings).Error; err != nil {
		return nil, err
	}
	return warnings, nil
}

// MuteInput is the payload for Mute. A zero duration mutes indefinitely.
type MuteInput struct {
	DurationMinutes int `json:"duration_minutes" binding:"min=0,max=43200"`
}

// Mute silences a member in clan chat. Gated by maxMutePower.
func (s *Service) Mute(ctx context.Context, clanID, actorID, targetMemberID int64, in MuteInput) error {
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return err
	}
	target, targetRole, err := s.memberByID(clanID, targetMemberID)
	if err != nil {
		return err
	}
	if target.UserID == actorID {
		return Invalidf("you cannot mute yourself")
	}
	if err := CanActOn(actorRole, targetRole, actorRole.Permissions.MemberPermissions.MaxMutePower); err != nil {
		return err
	}

	updates := map[string]interface{}{"is_muted": true, "mute_expires_at": nil}
	if in.DurationMinutes > 0 {
		updates["mute_expires_at"] = time.Now().Add(time.Duration(in.DurationMinutes) * time.Minute)
	}
	return s.db.Model(&model.ClanMember{}).Where("id = ?", target.ID).Updates(updates).Error
}

// Unmute lifts a mute. Same gate as Mute.
func (s *Service) Unmute(ctx context.Context, clanID, actorID, targetMemberID int64) error {
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return err
	}
	target, targetRole, err := s.memberByID(clanID, targetMemberID)
	if err != nil {
		return err
	}
	if err := CanActOn(actorRole, targetRole, actorRole.Permissions.MemberPermissions.MaxMutePower); err != nil {
		return err
	}
	return s.db.Model(&model.ClanMember{}).Where("id = ?", target.ID).
		Updates(map[string]interface{}{"is_muted": false, "mute_expires_at": nil}).Error
}

// SweepExpiredMutes clears mutes whose expiry has passed. Called by the
// scheduler; chat additionally checks lazily on post.
func (s *Service) SweepExpiredMutes(ctx context.Context) (int64, error) {
	res := s.db.Model(&model.ClanMember{}).
		Where("is_muted = ? AND mute_expires_at IS NOT NULL AND mute_expires_at <= ?", true, time.Now()).
		Updates(map[string]interface{}{"is_muted": false, "mute_expires_at": nil})
	return res.RowsAffected, res.Error
}
