package clan

import (
	"context"
	"errors"

	"clanhub/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApplyInput carries the answers to a clan's application template, keyed by
// question label.
type ApplyInput struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

// Apply submits a join application to an application-policy clan. One pending
// application per (clan, user); the partial unique index is the final arbiter.
func (s *Service) Apply(ctx context.Context, clanID, userID int64, in ApplyInput) (*model.ClanApplication, error) {
	clan, err := s.clanByID(clanID)
	if err != nil {
		return nil, err
	}
	if clan.JoinType != model.JoinTypeApplication {
		return nil, Forbiddenf("clan does not accept applications")
	}
	if m, _ := s.membershipOf(userID); m != nil {
		return nil, Conflictf("you already belong to a clan")
	}

	// Answers must cover exactly the clan's template questions.
	known := map[string]bool{}
	for _, f := range clan.ApplicationTemplate {
		known[f.Label] = true
		if _, ok := in.Answers[f.Label]; !ok {
			return nil, Invalidf("missing answer for %q", f.Label)
		}
	}
	for label := range in.Answers {
		if !known[label] {
			return nil, Invalidf("unknown question %q", label)
		}
	}

	answers := datatypes.JSONMap{}
	for k, v := range in.Answers {
		answers[k] = v
	}

	pending := true
	app := model.ClanApplication{
		ClanID:      clan.ID,
		UserID:      userID,
		Answers:     answers,
		Status:      model.ApplicationPending,
		PendingFlag: &pending,
	}
	if err := s.db.Create(&app).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, Conflictf("you already have a pending application for this clan")
		}
		return nil, err
	}
	return &app, nil
}

// HandleInput is the payload for HandleApplication.
type HandleInput struct {
	Status string `json:"status" binding:"required,oneof=accepted rejected"`
}

// HandleApplication resolves a pending application. Accepting creates the
// membership with the default role in the same transaction that marks the
// application accepted. If the applicant joined another clan in the interim
// the call fails with a conflict and the application stays pending for
// manual reconciliation. A second handle on the same application gets
// not-found.
func (s *Service) HandleApplication(ctx context.Context, applicationID, managerID int64, in HandleInput) error {
	var app model.ClanApplication
	if err := s.db.First(&app, applicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundf("application not found")
		}
		return err
	}
	if app.Status != model.ApplicationPending {
		return NotFoundf("application already processed")
	}

	_, role, err := s.memberWithRole(app.ClanID, managerID)
	if err != nil {
		return err
	}
	if !HasClanPermission(role, PermAcceptMembers) {
		return Forbiddenf("missing permission: %s", PermAcceptMembers)
	}

	if in.Status == model.ApplicationRejected {
		if err := s.db.Model(&app).
			Updates(map[string]interface{}{"status": model.ApplicationRejected, "pending_flag": nil}).Error; err != nil {
			return err
		}
		s.notify(ctx, app.UserID, EventApplicationHandled, map[string]interface{}{
			"clan_id": app.ClanID, "status": model.ApplicationRejected,
		})
		return nil
	}

	if m, _ := s.membershipOf(app.UserID); m != nil {
		return Conflictf("applicant already belongs to a clan; application left pending")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		defaultRole, err := s.systemRole(tx, app.ClanID, model.PowerDefaultMember)
		if err != nil {
			return err
		}
		if err := tx.Create(&model.ClanMember{
			ClanID: app.ClanID, UserID: app.UserID, RoleID: defaultRole.ID,
		}).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.ClanMemberHistory{ClanID: app.ClanID, UserID: app.UserID}).Error; err != nil {
			return err
		}
		return tx.Model(&model.ClanApplication{}).Where("id = ?", app.ID).
			Updates(map[string]interface{}{"status": model.ApplicationAccepted, "pending_flag": nil}).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race against another join; the rollback leaves the
			// application pending.
			return Conflictf("applicant already belongs to a clan; application left pending")
		}
		return err
	}

	s.logger.Info("application accepted",
		zap.Int64("application_id", app.ID), zap.Int64("clan_id", app.ClanID), zap.Int64("user_id", app.UserID))
	s.notify(ctx, app.UserID, EventApplicationHandled, map[string]interface{}{
		"clan_id": app.ClanID, "status": model.ApplicationAccepted,
	})
	return nil
}

// MyApplications lists the caller's applications, newest first.
func (s *Service) MyApplications(ctx context.Context, userID int64) ([]model.ClanApplication, error) {
	var apps []model.ClanApplication
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}
