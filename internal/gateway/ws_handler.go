package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
)

// NewHertzUpgrader creates the upgrader used by HandleHertzConnection
func NewHertzUpgrader(allowedOrigins []string) *websocket.HertzUpgrader {
	return &websocket.HertzUpgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(c *app.RequestContext) bool {
			return OriginAllowed(string(c.Request.Header.Peek("Origin")), allowedOrigins)
		},
	}
}

// HandleHertzConnection handles a WebSocket connection from Hertz using hertz-contrib/websocket
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.overLimit() {
		c.String(consts.StatusServiceUnavailable, "connection limit exceeded")
		return
	}

	sendId := c.Query(QuerySendId)
	sdkType := c.Query(QuerySDKType)
	claims, err := s.authenticate(c.Query(QueryToken), sendId, c.Query(QueryPlatformId))
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
		c.String(consts.StatusUnauthorized, "unauthorized")
		return
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		wsConn := NewHertzWebSocketClientConn(conn, &s.cfg.WebSocket)
		client := NewClient(wsConn, claims.UserId, claims.Role, claims.PlatformId, sdkType, uuid.NewString(), s)

		s.registerChan <- client

		// the hijacked connection lives as long as this handler
		client.readLoop()
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
	}
}
