package clan

import (
	"context"
	"errors"
	"time"

	"clanhub/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InviteInput is the payload for Invite.
type InviteInput struct {
	InviteeID int64 `json:"invitee_id" binding:"required"`
}

// Invite creates a time-boxed invitation for a user to join the clan.
// Requires the canInviteMembers toggle; one active invitation per
// (clan, invitee).
func (s *Service) Invite(ctx context.Context, clanID, inviterID int64, in InviteInput) (*model.ClanInvitation, error) {
	clan, err := s.clanByID(clanID)
	if err != nil {
		return nil, err
	}
	_, role, err := s.memberWithRole(clanID, inviterID)
	if err != nil {
		return nil, err
	}
	if !HasClanPermission(role, PermInviteMembers) {
		return nil, Forbiddenf("missing permission: %s", PermInviteMembers)
	}
	if in.InviteeID == inviterID {
		return nil, Invalidf("you cannot invite yourself")
	}

	var invitee model.User
	if err := s.db.First(&invitee, in.InviteeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("user not found")
		}
		return nil, err
	}
	if m, _ := s.membershipOf(in.InviteeID); m != nil {
		return nil, Conflictf("user already belongs to a clan")
	}

	// An expired pending row would still collide on the unique index, so
	// reap it eagerly for this pair before inserting.
	s.expirePending(s.db.Where("clan_id = ? AND invitee_id = ?", clanID, in.InviteeID))

	pending := true
	inv := model.ClanInvitation{
		ClanID:      clanID,
		InviterID:   inviterID,
		InviteeID:   in.InviteeID,
		Status:      model.InvitationPending,
		PendingFlag: &pending,
		ExpiresAt:   time.Now().Add(s.cfg.InvitationTTL),
	}
	if err := s.db.Create(&inv).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, Conflictf("user already has an active invitation to this clan")
		}
		return nil, err
	}

	s.notify(ctx, in.InviteeID, EventInvited, map[string]interface{}{
		"invitation_id": inv.ID, "clan_id": clanID, "clan_tag": clan.Tag, "clan_name": clan.Name,
	})
	return &inv, nil
}

// InvitationView is an invitation joined with clan display fields.
type InvitationView struct {
	model.ClanInvitation
	ClanName string `json:"clan_name"`
	ClanTag  string `json:"clan_tag"`
}

// MyInvitations lists the caller's live invitations. Expired rows are marked
// on the way through, never returned.
func (s *Service) MyInvitations(ctx context.Context, userID int64) ([]InvitationView, error) {
	s.expirePending(s.db.Where("invitee_id = ?", userID))

	var invs []model.ClanInvitation
	if err := s.db.Where("invitee_id = ? AND status = ?", userID, model.InvitationPending).
		Order("created_at DESC").Find(&invs).Error; err != nil {
		return nil, err
	}
	return s.invitationViews(invs)
}

// SentInvitations lists a clan's live outgoing invitations. Requires the
// canInviteMembers toggle.
func (s *Service) SentInvitations(ctx context.Context, clanID, actorID int64) ([]InvitationView, error) {
	_, role, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return nil, err
	}
	if !HasClanPermission(role, PermInviteMembers) {
		return nil, Forbiddenf("missing permission: %s", PermInviteMembers)
	}

	s.expirePending(s.db.Where("clan_id = ?", clanID))

	var invs []model.ClanInvitation
	if err := s.db.Where("clan_id = ? AND status = ?", clanID, model.InvitationPending).
		Order("created_at DESC").Find(&invs).Error; err != nil {
		return nil, err
	}
	return s.invitationViews(invs)
}

// HandleInvitation accepts or declines an invitation addressed to userID.
// Accepting creates the membership in the same transaction that marks the
// invitation accepted; declining deletes the row.
func (s *Service) HandleInvitation(ctx context.Context, invitationID, userID int64, action string) error {
	var inv model.ClanInvitation
	if err := s.db.First(&inv, invitationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundf("invitation not found")
		}
		return err
	}
	if inv.InviteeID != userID {
		return Forbiddenf("invitation is not addressed to you")
	}
	if inv.Status != model.InvitationPending {
		return NotFoundf("invitation already processed")
	}
	if inv.Expired(time.Now()) {
		_ = s.db.Model(&inv).
			Updates(map[string]interface{}{"status": model.InvitationExpired, "pending_flag": nil}).Error
		return NotFoundf("invitation expired")
	}

	switch action {
	case "decline":
		return s.db.Delete(&inv).Error
	case "accept":
	default:
		return Invalidf("action must be accept or decline")
	}

	if m, _ := s.membershipOf(userID); m != nil {
		return Conflictf("you already belong to a clan")
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		defaultRole, err := s.systemRole(tx, inv.ClanID, model.PowerDefaultMember)
		if err != nil {
			return err
		}
		if err := tx.Create(&model.ClanMember{
			ClanID: inv.ClanID, UserID: userID, RoleID: defaultRole.ID,
		}).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.ClanMemberHistory{ClanID: inv.ClanID, UserID: userID}).Error; err != nil {
			return err
		}
		return tx.Model(&model.ClanInvitation{}).Where("id = ?", inv.ID).
			Updates(map[string]interface{}{"status": model.InvitationAccepted, "pending_flag": nil}).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Conflictf("you already belong to a clan")
		}
		return err
	}

	s.logger.Info("invitation accepted",
		zap.Int64("invitation_id", inv.ID), zap.Int64("clan_id", inv.ClanID), zap.Int64("user_id", userID))
	return nil
}

// CancelInvitation withdraws a pending invitation. Any member holding
// canInviteMembers may cancel.
func (s *Service) CancelInvitation(ctx context.Context, clanID, invitationID, actorID int64) error {
	_, role, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return err
	}
	if !HasClanPermission(role, PermInviteMembers) {
		return Forbiddenf("missing permission: %s", PermInviteMembers)
	}

	res := s.db.Where("id = ? AND clan_id = ? AND status = ?",
		invitationID, clanID, model.InvitationPending).Delete(&model.ClanInvitation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return NotFoundf("invitation not found")
	}
	return nil
}

// ReapExpiredInvitations marks every expired pending invitation. Called by
// the scheduler; listings also filter lazily.
func (s *Service) ReapExpiredInvitations(ctx context.Context) (int64, error) {
	res := s.db.Model(&model.ClanInvitation{}).
		Where("status = ? AND expires_at <= ?", model.InvitationPending, time.Now()).
		Updates(map[string]interface{}{"status": model.InvitationExpired, "pending_flag": nil})
	return res.RowsAffected, res.Error
}

// expirePending marks expired pending invitations within the given scope.
func (s *Service) expirePending(scope *gorm.DB) {
	_ = scope.Model(&model.ClanInvitation{}).
		Where("status = ? AND expires_at <= ?", model.InvitationPending, time.Now()).
		Updates(map[string]interface{}{"status": model.InvitationExpired, "pending_flag": nil}).Error
}

func (s *Service) invitationViews(invs []model.ClanInvitation) ([]InvitationView, error) {
	views := make([]InvitationView, 0, len(invs))
	for _, inv := range invs {
		var clan model.Clan
		if err := s.db.First(&clan, inv.ClanID).Error; err != nil {
			continue
		}
		views = append(views, InvitationView{ClanInvitation: inv, ClanName: clan.Name, ClanTag: clan.Tag})
	}
	return views, nil
}
