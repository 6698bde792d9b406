package ws

import (
	"context"
	"encoding/json"

	"clanhub/chat"
	"clanhub/clan"
	"go.uber.org/zap"
)

// RegisterHandlers wires the realtime message types onto the router.
func RegisterHandlers(r *Router, chatSvc *chat.Service, logger *zap.Logger) {
	r.On("ping", func(ctx context.Context, s *Session, _ json.RawMessage) error {
		s.Send(&Packet{Type: "pong"})
		return nil
	})

	r.On("chat_send", func(ctx context.Context, s *Session, payload json.RawMessage) error {
		var req struct {
			ClanID int64 `json:"clan_id"`
			chat.ClanMessageInput
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			sendError(s, "malformed payload")
			return nil
		}
		if _, err := chatSvc.CreateClanMessage(ctx, req.ClanID, s.UserID, req.ClanMessageInput); err != nil {
			if clan.KindOf(err) == clan.KindInternal {
				return err
			}
			sendError(s, err.Error())
		}
		// Delivery happens over the clan pub/sub channel; no direct echo.
		return nil
	})

	r.On("chat_history", func(ctx context.Context, s *Session, payload json.RawMessage) error {
		var req struct {
			ClanID int64 `json:"clan_id"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			sendError(s, "malformed payload")
			return nil
		}
		if req.ClanID == 0 {
			req.ClanID = s.ClanID
		}
		msgs := chatSvc.RecentClanMessages(ctx, req.ClanID)
		data, err := json.Marshal(map[string]interface{}{"clan_id": req.ClanID, "messages": msgs})
		if err != nil {
			return err
		}
		s.Send(&Packet{Type: "chat_history", Payload: data})
		return nil
	})

	r.On("dm_send", func(ctx context.Context, s *Session, payload json.RawMessage) error {
		var req chat.DMInput
		if err := json.Unmarshal(payload, &req); err != nil {
			sendError(s, "malformed payload")
			return nil
		}
		if _, err := chatSvc.SendDM(ctx, s.UserID, req); err != nil {
			if clan.KindOf(err) == clan.KindInternal {
				return err
			}
			sendError(s, err.Error())
		}
		return nil
	})

	r.On("dm_mark_read", func(ctx context.Context, s *Session, payload json.RawMessage) error {
		var req struct {
			PeerID int64 `json:"peer_id"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			sendError(s, "malformed payload")
			return nil
		}
		if req.PeerID == 0 {
			sendError(s, "peer_id is required")
			return nil
		}
		return chatSvc.MarkRead(ctx, s.UserID, req.PeerID)
	})

	logger.Info("ws handlers registered")
}
