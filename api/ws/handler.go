package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"clanhub/cache"
	"clanhub/clan"
	"clanhub/config"
	mw "clanhub/middleware"
	"clanhub/model"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	db       *gorm.DB
	cache    cache.Cache
	ps       cache.PubSub
	sec      config.SecurityConfig
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	db *gorm.DB,
	c cache.Cache,
	ps cache.PubSub,
	sec config.SecurityConfig,
	hub *Hub,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		db:     db,
		cache:  c,
		ps:     ps,
		sec:    sec,
		hub:    hub,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := NewSession(claims.UserID, conn, h.logger)
	h.hub.Register(sess)

	unsub := h.subscribe(sess)
	defer unsub()

	h.readPump(sess)
}

// subscribe wires the session to its pub/sub channels: the personal channel,
// plus the clan channel (and admin channel when permitted) for members.
// Channel membership is fixed for the lifetime of the connection; role or
// membership changes take effect on reconnect.
func (h *Handler) subscribe(s *Session) func() {
	channels := []string{clan.UserChannel(s.UserID)}

	var member model.ClanMember
	if err := h.db.Where("user_id = ?", s.UserID).First(&member).Error; err == nil {
		s.ClanID = member.ClanID
		channels = append(channels, clan.ClanChannel(member.ClanID))

		var role model.ClanRole
		if err := h.db.First(&role, member.RoleID).Error; err == nil &&
			clan.HasClanPermission(&role, clan.PermAccessAdminChat) {
			channels = append(channels, clan.ClanAdminChannel(member.ClanID))
		}
	}

	subCtx, cancel := context.WithCancel(context.Background())
	msgCh, unsub, err := h.ps.Subscribe(subCtx, channels...)
	if err != nil {
		h.logger.Error("ws subscribe failed",
			zap.Int64("user_id", s.UserID), zap.Error(err))
		cancel()
		return func() {}
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				s.SendRaw([]byte(msg.Payload))
			case <-s.Done:
				return
			}
		}
	}()

	return func() {
		unsub()
		cancel()
	}
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *Session) {
	defer h.handleDisconnect(s)

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect cleans up the session after the connection closes.
func (h *Handler) handleDisconnect(s *Session) {
	s.Close()
	h.hub.Unregister(s)
	h.logger.Info("user disconnected", zap.Int64("user_id", s.UserID))
}

// sendError pushes an error packet back to the client.
func sendError(s *Session, msg string) {
	payload, _ := json.Marshal(map[string]string{"message": msg})
	s.Send(&Packet{Type: "error", Payload: payload})
}
