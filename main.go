package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	apirest "clanhub/api/rest"
	"clanhub/api/sse"
	apows "clanhub/api/ws"
	"clanhub/audit"
	"clanhub/cache"
	"clanhub/chat"
	"clanhub/clan"
	"clanhub/config"
	dbadapter "clanhub/db"
	mw "clanhub/middleware"
	"clanhub/model"
	"clanhub/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger, cfg.Audit)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Services ----
	clanSvc := clan.NewService(db, c, pubsub, logger, clan.Config{
		InvitationTTL:        cfg.Clan.InvitationTTL,
		MaxApplicationFields: cfg.Clan.MaxApplicationForms,
		MaxRolesPerClan:      cfg.Clan.MaxRolesPerClan,
	})
	chatSvc := chat.NewService(db, c, pubsub, logger, chat.Config{
		EditWindow:    cfg.Chat.EditWindow,
		MaxMessageLen: cfg.Chat.MaxMessageLen,
		PageSize:      cfg.Chat.PageSize,
	})

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("invitation_reaper", time.Duration(cfg.Clan.ReaperIntervalS)*time.Second, func() {
		n, err := clanSvc.ReapExpiredInvitations(context.Background())
		if err != nil {
			logger.Error("invitation reaper failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("expired invitations reaped", zap.Int64("count", n))
		}
	})
	sched.AddTicker("mute_sweep", time.Duration(cfg.Clan.MuteSweepIntervalS)*time.Second, func() {
		n, err := clanSvc.SweepExpiredMutes(context.Background())
		if err != nil {
			logger.Error("mute sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("expired mutes cleared", zap.Int64("count", n))
		}
	})

	// ---- WS Router ----
	hub := apows.NewHub(logger)
	defer hub.CloseAll()
	wsRouter := apows.NewRouter(logger)
	apows.RegisterHandlers(wsRouter, chatSvc, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	clanH := apirest.NewClanHandler(clanSvc, auditSvc)
	memberH := apirest.NewMemberHandler(clanSvc, auditSvc)
	roleH := apirest.NewRoleHandler(clanSvc)
	appH := apirest.NewApplicationHandler(clanSvc, auditSvc)
	invH := apirest.NewInvitationHandler(clanSvc)
	reviewH := apirest.NewReviewHandler(clanSvc)
	clanMsgH := apirest.NewClanMessageHandler(chatSvc, clanSvc)
	msgH := apirest.NewMessageHandler(chatSvc)
	socialH := apirest.NewSocialHandler(chatSvc)
	adminH := apirest.NewAdminHandler(db, hub, sched, logger)

	auth := mw.Auth(cfg.Security, c)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)
		authG.GET("/me", auth, authH.Me)

		clansG := api.Group("/clans")
		// Public discovery endpoints.
		clansG.GET("", clanH.List)
		clansG.GET("/top", clanH.TopRated)
		clansG.GET("/:tag", clanH.Detail)
		clansG.GET("/:tag/reviews", reviewH.List)
		// Authenticated clan operations.
		clansG.POST("", auth, clanH.Create)
		clansG.POST("/leave", auth, memberH.Leave)
		clansG.GET("/:tag/management", auth, clanH.Management)
		clansG.PUT("/:tag", auth, clanH.UpdateDetails)
		clansG.PUT("/:tag/settings", auth, clanH.UpdateSettings)
		clansG.POST("/:tag/transfer", auth, clanH.Transfer)
		clansG.DELETE("/:tag", auth, clanH.Delete)
		clansG.POST("/:tag/join", auth, memberH.Join)
		clansG.DELETE("/:tag/members/:mid", auth, memberH.Kick)
		clansG.PUT("/:tag/members/:mid/role", auth, memberH.ChangeRole)
		clansG.POST("/:tag/members/:mid/warnings", auth, memberH.Warn)
		clansG.GET("/:tag/warnings", auth, memberH.Warnings)
		clansG.DELETE("/:tag/warnings/:wid", auth, memberH.DeleteWarning)
		clansG.POST("/:tag/members/:mid/mute", auth, memberH.Mute)
		clansG.DELETE("/:tag/members/:mid/mute", auth, memberH.Unmute)
		clansG.GET("/:tag/roles", auth, roleH.List)
		clansG.POST("/:tag/roles", auth, roleH.Create)
		clansG.PUT("/:tag/roles/:rid", auth, roleH.Update)
		clansG.DELETE("/:tag/roles/:rid", auth, roleH.Delete)
		clansG.POST("/:tag/applications", auth, appH.Apply)
		clansG.POST("/:tag/invitations", auth, invH.Invite)
		clansG.GET("/:tag/invitations", auth, invH.Sent)
		clansG.DELETE("/:tag/invitations/:iid", auth, invH.Cancel)
		clansG.POST("/:tag/reviews", auth, reviewH.Create)
		clansG.POST("/:tag/messages", auth, clanMsgH.Create)
		clansG.GET("/:tag/messages", auth, clanMsgH.List)
		clansG.PUT("/:tag/messages/:mid", auth, clanMsgH.Edit)
		clansG.DELETE("/:tag/messages/:mid", auth, clanMsgH.Delete)

		api.PUT("/applications/:id", auth, appH.Handle)
		api.PUT("/invitations/:id", auth, invH.Handle)

		meG := api.Group("/me")
		meG.Use(auth)
		meG.GET("/applications", appH.Mine)
		meG.GET("/invitations", invH.Mine)
		meG.GET("/warnings", memberH.MyWarnings)

		msgG := api.Group("/messages")
		msgG.Use(auth)
		msgG.POST("", msgH.Send)
		msgG.GET("", msgH.Conversations)
		msgG.GET("/:uid", msgH.Conversation)
		msgG.POST("/:uid/read", msgH.MarkRead)
		msgG.PUT("/id/:mid", msgH.Edit)
		msgG.DELETE("/id/:mid", msgH.Delete)

		socialG := api.Group("/social")
		socialG.Use(auth)
		socialG.GET("/friends", socialH.Friends)
		socialG.POST("/friends", socialH.Request)
		socialG.POST("/friends/:id/accept", socialH.Accept)
		socialG.DELETE("/friends/:id", socialH.Remove)
		socialG.POST("/block/:id", socialH.Block)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/users/:id/ban", adminH.BanUser)
		adminG.POST("/users/:id/disconnect", adminH.DisconnectUser)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(db, c, pubsub, cfg.Security, hub, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
