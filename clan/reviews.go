package clan

import (
	"context"

	"clanhub/model"
	"go.uber.org/zap"
)

// ReviewInput is the payload for CreateReview.
type ReviewInput struct {
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
	Text   string `json:"text" binding:"max=2000"`
}

// CreateReview records a rating from a current or former member. One review
// per (clan, author); eligibility comes from the membership history.
func (s *Service) CreateReview(ctx context.Context, clanID, authorID int64, in ReviewInput) (*model.ClanReview, error) {
	if _, err := s.clanByID(clanID); err != nil {
		return nil, err
	}

	var stints int64
	if err := s.db.Model(&model.ClanMemberHistory{}).
		Where("clan_id = ? AND user_id = ?", clanID, authorID).Count(&stints).Error; err != nil {
		return nil, err
	}
	if stints == 0 {
		return nil, Forbiddenf("only current or former members can review a clan")
	}

	review := model.ClanReview{ClanID: clanID, AuthorID: authorID, Rating: in.Rating, Text: in.Text}
	if err := s.db.Create(&review).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, Conflictf("you already reviewed this clan")
		}
		return nil, err
	}

	s.refreshRating(ctx, clanID)
	return &review, nil
}

// Reviews lists a clan's reviews, newest first.
func (s *Service) Reviews(ctx context.Context, clanID int64) ([]model.ClanReview, error) {
	if _, err := s.clanByID(clanID); err != nil {
		return nil, err
	}
	var reviews []model.ClanReview
	if err := s.db.Where("clan_id = ?", clanID).Order("created_at DESC").Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

// refreshRating recomputes the clan's average rating into the leaderboard
// zset. Best-effort.
func (s *Service) refreshRating(ctx context.Context, clanID int64) {
	var avg float64
	row := s.db.Model(&model.ClanReview{}).Where("clan_id = ?", clanID).
		Select("AVG(rating)").Row()
	if err := row.Scan(&avg); err != nil {
		return
	}
	clan, err := s.clanByID(clanID)
	if err != nil {
		return
	}
	if err := s.cache.ZAdd(ctx, ratingsKey, avg, clan.Tag); err != nil {
		s.logger.Warn("rating refresh failed", zap.Int64("clan_id", clanID), zap.Error(err))
	}
}
