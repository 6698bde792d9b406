package chat

import (
	"context"
	"errors"
	"strings"

	"clanhub/clan"
	"clanhub/model"
	"gorm.io/gorm"
)

// FriendView is one row of the friends list.
type FriendView struct {
	FriendshipID int64  `json:"friendship_id"`
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	AvatarURL    string `json:"avatar_url"`
	Pending      bool   `json:"pending"`
	Incoming     bool   `json:"incoming"`
}

// Friends lists accepted friendships plus pending requests involving the
// caller.
func (s *Service) Friends(ctx context.Context, userID int64) ([]FriendView, error) {
	var rows []model.Friendship
	if err := s.db.Where(
		"(requester_id = ? OR receiver_id = ?) AND status IN ?",
		userID, userID, []int{model.FriendshipPending, model.FriendshipAccepted},
	).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	views := make([]FriendView, 0, len(rows))
	for _, f := range rows {
		peer := f.RequesterID
		if peer == userID {
			peer = f.ReceiverID
		}
		var u model.User
		if err := s.db.First(&u, peer).Error; err != nil {
			continue
		}
		views = append(views, FriendView{
			FriendshipID: f.ID,
			UserID:       peer,
			Username:     u.Username,
			AvatarURL:    u.AvatarURL,
			Pending:      f.Status == model.FriendshipPending,
			Incoming:     f.Status == model.FriendshipPending && f.ReceiverID == userID,
		})
	}
	return views, nil
}

// FriendRequestInput is the payload for RequestFriend.
type FriendRequestInput struct {
	TargetID int64 `json:"target_id" binding:"required"`
}

// RequestFriend creates a pending friendship toward targetID.
func (s *Service) RequestFriend(ctx context.Context, userID int64, in FriendRequestInput) error {
	if in.TargetID == userID {
		return clan.Invalidf("you cannot befriend yourself")
	}
	var target model.User
	if err := s.db.First(&target, in.TargetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return clan.NotFoundf("user not found")
		}
		return err
	}

	var existing model.Friendship
	err := s.pairScope(userID, in.TargetID).First(&existing).Error
	if err == nil {
		switch existing.Status {
		case model.FriendshipBlocked:
			return clan.Forbiddenf("cannot send friend request")
		case model.FriendshipAccepted:
			return clan.Conflictf("already friends")
		default:
			return clan.Conflictf("request already pending")
		}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	f := model.Friendship{RequesterID: userID, ReceiverID: in.TargetID, Status: model.FriendshipPending}
	if err := s.db.Create(&f).Error; err != nil {
		if isUnique(err) {
			return clan.Conflictf("request already pending")
		}
		return err
	}
	s.publishTo(ctx, clan.UserChannel(in.TargetID), EventFriendRequest, map[string]interface{}{
		"friendship_id": f.ID, "from_id": userID,
	})
	return nil
}

// AcceptFriend accepts a pending request addressed to the caller.
func (s *Service) AcceptFriend(ctx context.Context, userID, friendshipID int64) error {
	var f model.Friendship
	if err := s.db.Where("id = ? AND receiver_id = ? AND status = ?",
		friendshipID, userID, model.FriendshipPending).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return clan.NotFoundf("request not found")
		}
		return err
	}
	return s.db.Model(&f).Update("status", model.FriendshipAccepted).Error
}

// RemoveFriend deletes any friendship or pending request between the caller
// and the given user.
func (s *Service) RemoveFriend(ctx context.Context, userID, peerID int64) error {
	return s.pairScope(userID, peerID).
		Where("status <> ?", model.FriendshipBlocked).
		Delete(&model.Friendship{}).Error
}

// Block marks the relationship blocked, creating it if absent. Blocked users
// cannot send requests or DMs.
func (s *Service) Block(ctx context.Context, userID, targetID int64) error {
	if targetID == userID {
		return clan.Invalidf("you cannot block yourself")
	}
	var f model.Friendship
	err := s.pairScope(userID, targetID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		f = model.Friendship{RequesterID: userID, ReceiverID: targetID}
	} else if err != nil {
		return err
	}
	f.Status = model.FriendshipBlocked
	return s.db.Save(&f).Error
}

// areFriends reports whether an accepted friendship exists between the two
// users.
func (s *Service) areFriends(a, b int64) (bool, error) {
	var n int64
	err := s.db.Model(&model.Friendship{}).
		Where("((requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)) AND status = ?",
			a, b, b, a, model.FriendshipAccepted).
		Count(&n).Error
	return n > 0, err
}

// pairScope scopes a query to the friendship row between two users in either
// direction.
func (s *Service) pairScope(a, b int64) *gorm.DB {
	return s.db.Where(
		"(requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)",
		a, b, b, a,
	)
}

// isUnique detects duplicate-key errors from common database drivers.
func isUnique(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
