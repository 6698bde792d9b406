package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"clanhub/cache"
	"clanhub/clan"
	"clanhub/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// deletedMarker replaces the content of moderated messages so reply threads
// keep their shape.
const deletedMarker = "[deleted]"

// recentHistory is how many general-channel messages are kept in the cache
// list for fast initial loads.
const recentHistory = 50

// Realtime event types.
const (
	EventClanMessage        = "clan_message"
	EventClanMessageEdited  = "clan_message_edited"
	EventClanMessageDeleted = "clan_message_deleted"
	EventDM                 = "dm"
	EventDMEdited           = "dm_edited"
	EventDMDeleted          = "dm_deleted"
	EventFriendRequest      = "friend_request"
)

// Config holds the chat tunables.
type Config struct {
	EditWindow    time.Duration
	MaxMessageLen int
	PageSize      int
}

// Service implements clan chat, direct messages and friendships. Events fan
// out over pub/sub; consistency lives in the database.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	ps     cache.PubSub
	logger *zap.Logger
	cfg    Config
}

// NewService creates a chat Service.
func NewService(db *gorm.DB, c cache.Cache, ps cache.PubSub, logger *zap.Logger, cfg Config) *Service {
	if cfg.EditWindow <= 0 {
		cfg.EditWindow = 10 * time.Minute
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 2000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Service{db: db, cache: c, ps: ps, logger: logger, cfg: cfg}
}

// ClanMessageInput is the payload for CreateClanMessage.
type ClanMessageInput struct {
	Content  string `json:"content" binding:"required"`
	Channel  string `json:"channel" binding:"omitempty,oneof=general admin"`
	ParentID *int64 `json:"parent_id"`
}

// CreateClanMessage posts to a clan channel. The author must be an unmuted
// member; the admin channel requires the canAccessAdminChat toggle.
func (s *Service) CreateClanMessage(ctx context.Context, clanID, authorID int64, in ClanMessageInput) (*model.ClanMessage, error) {
	member, role, err := s.memberWithRole(clanID, authorID)
	if err != nil {
		return nil, err
	}

	channel := in.Channel
	if channel == "" {
		channel = model.ChannelGeneral
	}
	if channel == model.ChannelAdmin && !clan.HasClanPermission(role, clan.PermAccessAdminChat) {
		return nil, clan.Forbiddenf("missing permission: %s", clan.PermAccessAdminChat)
	}

	if muted, err := s.checkMute(member); err != nil {
		return nil, err
	} else if muted {
		return nil, clan.Forbiddenf("you are muted in this clan")
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, clan.Invalidf("content cannot be empty")
	}
	if len([]rune(content)) > s.cfg.MaxMessageLen {
		return nil, clan.Invalidf("content exceeds %d characters", s.cfg.MaxMessageLen)
	}

	if in.ParentID != nil {
		var parent model.ClanMessage
		if err := s.db.Where("id = ? AND clan_id = ? AND channel = ?",
			*in.ParentID, clanID, channel).First(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, clan.Invalidf("parent message not found in this channel")
			}
			return nil, err
		}
	}

	msg := model.ClanMessage{
		ClanID:   clanID,
		AuthorID: &authorID,
		Content:  content,
		Channel:  channel,
		ParentID: in.ParentID,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}

	s.publishClan(ctx, clanID, channel, EventClanMessage, msg)
	if channel == model.ChannelGeneral {
		raw, _ := json.Marshal(msg)
		key := clan.ClanChannel(clanID) + ":recent"
		_ = s.cache.LPush(ctx, key, string(raw))
		_ = s.cache.LTrim(ctx, key, 0, recentHistory-1)
	}
	return &msg, nil
}

// ClanMessages lists a channel's messages, newest first, paginated. Members
// only; the admin channel additionally requires canAccessAdminChat.
func (s *Service) ClanMessages(ctx context.Context, clanID, userID int64, channel string, page int) ([]model.ClanMessage, error) {
	_, role, err := s.memberWithRole(clanID, userID)
	if err != nil {
		return nil, err
	}
	if channel == "" {
		channel = model.ChannelGeneral
	}
	if channel == model.ChannelAdmin && !clan.HasClanPermission(role, clan.PermAccessAdminChat) {
		return nil, clan.Forbiddenf("missing permission: %s", clan.PermAccessAdminChat)
	}
	if page < 1 {
		page = 1
	}

	var msgs []model.ClanMessage
	if err := s.db.Where("clan_id = ? AND channel = ?", clanID, channel).
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * s.cfg.PageSize).Limit(s.cfg.PageSize).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// RecentClanMessages returns the cached tail of the general channel. Used by
// the realtime layer on connect; falls back to empty on a cold cache.
func (s *Service) RecentClanMessages(ctx context.Context, clanID int64) []model.ClanMessage {
	raw, err := s.cache.LRange(ctx, clan.ClanChannel(clanID)+":recent", 0, recentHistory-1)
	if err != nil {
		return nil
	}
	msgs := make([]model.ClanMessage, 0, len(raw))
	for _, r := range raw {
		var m model.ClanMessage
		if json.Unmarshal([]byte(r), &m) == nil {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// EditInput is the payload for message edits.
type EditInput struct {
	Content string `json:"content" binding:"required"`
}

// EditClanMessage rewrites a message's content. Author only, within the edit
// window.
func (s *Service) EditClanMessage(ctx context.Context, clanID, messageID, userID int64, in EditInput) (*model.ClanMessage, error) {
	msg, err := s.clanMessage(clanID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID == nil || *msg.AuthorID != userID {
		return nil, clan.Forbiddenf("only the author can edit a message")
	}
	if time.Since(msg.CreatedAt) > s.cfg.EditWindow {
		return nil, clan.Forbiddenf("edit window has closed")
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, clan.Invalidf("content cannot be empty")
	}
	if len([]rune(content)) > s.cfg.MaxMessageLen {
		return nil, clan.Invalidf("content exceeds %d characters", s.cfg.MaxMessageLen)
	}

	if err := s.db.Model(msg).Update("content", content).Error; err != nil {
		return nil, err
	}
	msg.Content = content
	s.publishClan(ctx, clanID, msg.Channel, EventClanMessageEdited, *msg)
	return msg, nil
}

// DeleteClanMessage removes a message's content. Allowed for the author, or
// for any member whose role power exceeds the author's. The row survives
// with a deletion marker so replies keep their parent.
func (s *Service) DeleteClanMessage(ctx context.Context, clanID, messageID, userID int64) error {
	msg, err := s.clanMessage(clanID, messageID)
	if err != nil {
		return err
	}

	isAuthor := msg.AuthorID != nil && *msg.AuthorID == userID
	if !isAuthor {
		_, actorRole, err := s.memberWithRole(clanID, userID)
		if err != nil {
			return err
		}
		// A departed author counts as power 0.
		authorPower := 0
		if msg.AuthorID != nil {
			if _, authorRole, err := s.memberWithRole(clanID, *msg.AuthorID); err == nil {
				authorPower = authorRole.PowerLevel
			}
		}
		if actorRole.PowerLevel <= authorPower {
			return clan.Forbiddenf("only the author or a higher-powered member can delete this message")
		}
	}

	if err := s.db.Model(msg).
		Updates(map[string]interface{}{"content": deletedMarker, "author_id": nil}).Error; err != nil {
		return err
	}
	s.publishClan(ctx, clanID, msg.Channel, EventClanMessageDeleted, map[string]interface{}{
		"message_id": msg.ID, "clan_id": clanID,
	})
	return nil
}

// ---- internal helpers ----

func (s *Service) clanMessage(clanID, messageID int64) (*model.ClanMessage, error) {
	var msg model.ClanMessage
	if err := s.db.Where("id = ? AND clan_id = ?", messageID, clanID).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, clan.NotFoundf("message not found")
		}
		return nil, err
	}
	return &msg, nil
}

func (s *Service) memberWithRole(clanID, userID int64) (*model.ClanMember, *model.ClanRole, error) {
	var m model.ClanMember
	if err := s.db.Where("clan_id = ? AND user_id = ?", clanID, userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, clan.Forbiddenf("not a member of this clan")
		}
		return nil, nil, err
	}
	var role model.ClanRole
	if err := s.db.First(&role, m.RoleID).Error; err != nil {
		return nil, nil, err
	}
	return &m, &role, nil
}

// checkMute reports whether the member is muted, clearing expired mutes
// lazily on the way.
func (s *Service) checkMute(member *model.ClanMember) (bool, error) {
	if !member.IsMuted {
		return false, nil
	}
	if member.MuteExpiresAt != nil && time.Now().After(*member.MuteExpiresAt) {
		err := s.db.Model(&model.ClanMember{}).Where("id = ?", member.ID).
			Updates(map[string]interface{}{"is_muted": false, "mute_expires_at": nil}).Error
		return false, err
	}
	return true, nil
}

func (s *Service) publishClan(ctx context.Context, clanID int64, channel, typ string, data interface{}) {
	target := clan.ClanChannel(clanID)
	if channel == model.ChannelAdmin {
		target = clan.ClanAdminChannel(clanID)
	}
	s.publishTo(ctx, target, typ, data)
}

func (s *Service) publishTo(ctx context.Context, channel, typ string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"type": typ, "data": data})
	if err != nil {
		return
	}
	if err := s.ps.Publish(ctx, channel, string(payload)); err != nil {
		s.logger.Warn("publish failed", zap.String("channel", channel), zap.Error(err))
	}
}
