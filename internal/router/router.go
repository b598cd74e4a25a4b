package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbeoliero/trato/internal/config"
	"github.com/mbeoliero/trato/internal/gateway"
	"github.com/mbeoliero/trato/internal/handler"
	"github.com/mbeoliero/trato/internal/middleware"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
}

// SetupRouter sets up all routes. wsServer may be nil when the realtime
// transport is not served by this process.
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer) {
	h.Use(middleware.Metrics())
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})
	h.GET("/metrics", adaptor.HertzHandler(promhttp.Handler()))

	auth := middleware.JWTAuth(cfg.JWT.Secret)

	// Message routes (auth required)
	msgGroup := h.Group("/msg", auth)
	{
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.GET("/list", handlers.Message.ListMessages)
		msgGroup.POST("/mark_read", handlers.Message.MarkRead)
	}

	// Conversation routes (auth required)
	convGroup := h.Group("/conversation", auth)
	{
		convGroup.POST("/create", handlers.Conversation.CreateConversation)
		convGroup.GET("/list", handlers.Conversation.GetConversationList)
		convGroup.GET("/info", handlers.Conversation.GetConversation)
		convGroup.POST("/accept", handlers.Conversation.AcceptConversation)
		convGroup.POST("/reject", handlers.Conversation.RejectConversation)
		convGroup.POST("/complete", handlers.Conversation.CompleteConversation)
		convGroup.POST("/cancel", handlers.Conversation.CancelConversation)
		convGroup.POST("/delete", handlers.Conversation.DeleteConversation)
		convGroup.GET("/unread_summary", handlers.Conversation.GetUnreadSummary)
		convGroup.GET("/unread_count", handlers.Conversation.GetUnreadCount)
		convGroup.GET("/peer_online", handlers.Conversation.GetPeerOnline)
	}

	if wsServer != nil {
		upgrader := gateway.NewHertzUpgrader(cfg.Server.AllowedOrigins)
		h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
			wsServer.HandleHertzConnection(ctx, c, upgrader)
		})
	}
}
