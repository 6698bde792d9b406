package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"clanhub/clan"
	"clanhub/model"
	"gorm.io/gorm"
)

// unreadKey is the per-user hash of unread DM counts, keyed by peer user id.
func unreadKey(userID int64) string {
	return "dm:unread:" + strconv.FormatInt(userID, 10)
}

// DMInput is the payload for SendDM.
type DMInput struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
	ParentID   *int64 `json:"parent_id"`
}

// SendDM sends a direct message. Conversations are restricted to accepted
// friends.
func (s *Service) SendDM(ctx context.Context, senderID int64, in DMInput) (*model.Message, error) {
	if in.ReceiverID == senderID {
		return nil, clan.Invalidf("you cannot message yourself")
	}
	ok, err := s.areFriends(senderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, clan.Forbiddenf("you can only message friends")
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, clan.Invalidf("content cannot be empty")
	}
	if len([]rune(content)) > s.cfg.MaxMessageLen {
		return nil, clan.Invalidf("content exceeds %d characters", s.cfg.MaxMessageLen)
	}

	if in.ParentID != nil {
		var parent model.Message
		if err := s.db.Where(
			"id = ? AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			*in.ParentID, senderID, in.ReceiverID, in.ReceiverID, senderID,
		).First(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, clan.Invalidf("parent message not found in this conversation")
			}
			return nil, err
		}
	}

	msg := model.Message{
		SenderID:   senderID,
		ReceiverID: in.ReceiverID,
		Content:    content,
		ParentID:   in.ParentID,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}

	if _, err := s.cache.HIncrBy(ctx, unreadKey(in.ReceiverID), strconv.FormatInt(senderID, 10), 1); err != nil {
		s.logger.Warn("unread counter update failed")
	}
	s.publishTo(ctx, clan.UserChannel(in.ReceiverID), EventDM, msg)
	s.publishTo(ctx, clan.UserChannel(senderID), EventDM, msg)
	return &msg, nil
}

// Conversation lists the messages between the caller and a peer, newest
// first. Soft-deleted messages come back with their content masked.
func (s *Service) Conversation(ctx context.Context, userID, peerID int64, page int) ([]model.Message, error) {
	if page < 1 {
		page = 1
	}
	var msgs []model.Message
	if err := s.db.Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		userID, peerID, peerID, userID,
	).Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * s.cfg.PageSize).Limit(s.cfg.PageSize).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].IsDeleted {
			msgs[i].Content = deletedMarker
		}
	}
	return msgs, nil
}

// ConversationPreview is one row of the conversation list.
type ConversationPreview struct {
	PeerID       int64         `json:"peer_id"`
	PeerUsername string        `json:"peer_username"`
	LastMessage  model.Message `json:"last_message"`
	UnreadCount  int64         `json:"unread_count"`
}

// Conversations returns the caller's conversation previews, most recent
// first, with unread counts from the cache.
func (s *Service) Conversations(ctx context.Context, userID int64) ([]ConversationPreview, error) {
	var msgs []model.Message
	if err := s.db.Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").Order("id DESC").Find(&msgs).Error; err != nil {
		return nil, err
	}

	unread, _ := s.cache.HGetAll(ctx, unreadKey(userID))

	seen := map[int64]bool{}
	previews := []ConversationPreview{}
	for _, m := range msgs {
		peer := m.SenderID
		if peer == userID {
			peer = m.ReceiverID
		}
		if seen[peer] {
			continue
		}
		seen[peer] = true

		var u model.User
		if err := s.db.First(&u, peer).Error; err != nil {
			continue
		}
		if m.IsDeleted {
			m.Content = deletedMarker
		}
		var count int64
		if v, ok := unread[strconv.FormatInt(peer, 10)]; ok {
			count, _ = strconv.ParseInt(v, 10, 64)
		}
		previews = append(previews, ConversationPreview{
			PeerID:       peer,
			PeerUsername: u.Username,
			LastMessage:  m,
			UnreadCount:  count,
		})
	}
	return previews, nil
}

// MarkRead stamps every unread message from peerID and resets the unread
// counter.
func (s *Service) MarkRead(ctx context.Context, userID, peerID int64) error {
	now := time.Now()
	if err := s.db.Model(&model.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND viewed_at IS NULL", peerID, userID).
		Update("viewed_at", now).Error; err != nil {
		return err
	}
	return s.cache.HDel(ctx, unreadKey(userID), strconv.FormatInt(peerID, 10))
}

// EditDM rewrites a direct message. Author only, within the edit window.
func (s *Service) EditDM(ctx context.Context, messageID, userID int64, in EditInput) (*model.Message, error) {
	msg, err := s.dm(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, clan.Forbiddenf("only the author can edit a message")
	}
	if msg.IsDeleted {
		return nil, clan.NotFoundf("message not found")
	}
	if time.Since(msg.CreatedAt) > s.cfg.EditWindow {
		return nil, clan.Forbiddenf("edit window has closed")
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, clan.Invalidf("content cannot be empty")
	}

	if err := s.db.Model(msg).Update("content", content).Error; err != nil {
		return nil, err
	}
	msg.Content = content
	s.publishTo(ctx, clan.UserChannel(msg.ReceiverID), EventDMEdited, *msg)
	s.publishTo(ctx, clan.UserChannel(msg.SenderID), EventDMEdited, *msg)
	return msg, nil
}

// DeleteDM soft-deletes a direct message. Author only.
func (s *Service) DeleteDM(ctx context.Context, messageID, userID int64) error {
	msg, err := s.dm(messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return clan.Forbiddenf("only the author can delete a message")
	}
	if err := s.db.Model(msg).Update("is_deleted", true).Error; err != nil {
		return err
	}
	payload := map[string]interface{}{"message_id": msg.ID}
	s.publishTo(ctx, clan.UserChannel(msg.ReceiverID), EventDMDeleted, payload)
	s.publishTo(ctx, clan.UserChannel(msg.SenderID), EventDMDeleted, payload)
	return nil
}

func (s *Service) dm(messageID int64) (*model.Message, error) {
	var msg model.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, clan.NotFoundf("message not found")
		}
		return nil, err
	}
	return &msg, nil
}
