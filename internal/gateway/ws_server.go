package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/trato/internal/config"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/internal/service"
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/mbeoliero/trato/pkg/errcode"
	"github.com/mbeoliero/trato/pkg/jwt"
	"github.com/mbeoliero/trato/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// WsServer is the WebSocket server
type WsServer struct {
	upgrader       *websocket.Upgrader
	cfg            *config.Config
	userMap        *UserMap
	broker         *RedisBroker
	instanceId     string
	registerChan   chan *Client
	unregisterChan chan *Client
	pushShards     []chan *PushTask
	validate       *validator.Validate
	msgService     *service.MessageService
	convService    *service.ConversationService
	unreadService  *service.UnreadService
	onlineUserNum  atomic.Int64
	onlineConnNum  atomic.Int64
	maxConnNum     int64
}

// PushTask is one event routed to every connection of its target users.
// MessageId and SenderId are set for message_delivered so a delivery
// receipt can be sent back to the sender.
type PushTask struct {
	Event     *entity.PushEvent
	TargetIds []string
	MessageId int64
	SenderId  string
	remote    bool
}

// NewWsServer creates a new WebSocket server. rdb may be nil, in which case
// presence and fan-out stay local to this instance.
func NewWsServer(cfg *config.Config, rdb *redis.Client, msgService *service.MessageService,
	convService *service.ConversationService, unreadService *service.UnreadService) *WsServer {
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return OriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}

	workerNum := cfg.WebSocket.PushWorkerNum
	if workerNum <= 0 {
		workerNum = 10
	}
	shardSize := cfg.WebSocket.PushChannelSize / workerNum
	if shardSize < 64 {
		shardSize = 64
	}
	shards := make([]chan *PushTask, workerNum)
	for i := range shards {
		shards[i] = make(chan *PushTask, shardSize)
	}

	server := &WsServer{
		upgrader:       upgrader,
		cfg:            cfg,
		userMap:        NewUserMap(rdb),
		instanceId:     uuid.NewString(),
		registerChan:   make(chan *Client, 1000),
		unregisterChan: make(chan *Client, 1000),
		pushShards:     shards,
		validate:       validator.New(),
		msgService:     msgService,
		convService:    convService,
		unreadService:  unreadService,
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}
	if rdb != nil {
		server.broker = NewRedisBroker(rdb, server.instanceId)
	}

	return server
}

// Run starts the WebSocket server loops
func (s *WsServer) Run(ctx context.Context) error {
	go s.eventLoop(ctx)
	for _, shard := range s.pushShards {
		go s.pushLoop(ctx, shard)
	}
	log.Info("started %d push workers", len(s.pushShards))

	if s.broker != nil {
		if err := s.broker.Subscribe(ctx, s.enqueue); err != nil {
			return err
		}
		go s.presenceLoop(ctx)
	}
	return nil
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		}
	}
}

// pushLoop delivers the tasks of one shard in queue order
func (s *WsServer) pushLoop(ctx context.Context, tasks <-chan *PushTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-tasks:
			s.processPushTask(ctx, task)
		}
	}
}

// presenceLoop keeps the Redis online markers of local users alive
func (s *WsServer) presenceLoop(ctx context.Context) {
	ticker := time.NewTicker(presenceTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.userMap.RefreshOnlineStatus(ctx)
		}
	}
}

// processPushTask writes the event to every local connection of the targets
func (s *WsServer) processPushTask(ctx context.Context, task *PushTask) {
	reachedRecipient := false
	for _, userId := range task.TargetIds {
		clients, ok := s.userMap.GetAll(userId)
		if !ok {
			continue
		}

		for _, client := range clients {
			if err := client.Push(task.Event); err != nil {
				log.CtxDebug(ctx, "push to client failed: user_id=%s, conn_id=%s, error=%v", userId, client.ConnId, err)
				continue
			}
			metrics.PushedEvents.WithLabelValues(task.Event.Type).Inc()
			if userId != task.SenderId {
				reachedRecipient = true
			}
		}
	}

	if !task.remote && s.broker != nil {
		if err := s.broker.Publish(ctx, task); err != nil {
			log.CtxWarn(ctx, "publish push task failed: type=%s, conversation_id=%s, error=%v", task.Event.Type, task.Event.ConversationId, err)
		}
	}

	if reachedRecipient && task.Event.Type == entity.PushMessageDelivered && task.SenderId != "" && task.MessageId != 0 {
		receipt := entity.NewMessageStatus(task.Event.ConversationId, task.MessageId, entity.MessageStatusDelivered, "")
		s.AsyncPushToUsers(ctx, receipt, []string{task.SenderId})
	}
}

// registerClient registers a client
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	if s.userMap.Register(ctx, client) {
		s.onlineUserNum.Add(1)
	}
	s.onlineConnNum.Add(1)
	s.updateGauges()

	log.CtxInfo(ctx, "client registered: user_id=%s, role=%s, platform=%s, conn_id=%s, online_users=%d, online_conns=%d",
		client.UserId, client.Role, constant.PlatformIdToName(client.PlatformId), client.ConnId, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	isUserOffline := s.userMap.Unregister(ctx, client)
	s.onlineConnNum.Add(-1)
	if isUserOffline {
		s.onlineUserNum.Add(-1)
	}
	s.updateGauges()

	log.CtxInfo(ctx, "client unregistered: user_id=%s, platform=%s, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d, reason=%v",
		client.UserId, constant.PlatformIdToName(client.PlatformId), client.ConnId, isUserOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load(), client.closedErr)
}

func (s *WsServer) updateGauges() {
	metrics.OnlineConnections.Set(float64(s.onlineConnNum.Load()))
	metrics.OnlineUsers.Set(float64(s.onlineUserNum.Load()))
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full: user_id=%s", client.UserId)
	}
}

// Shutdown kicks every local connection
func (s *WsServer) Shutdown(ctx context.Context) {
	kicked := 0
	for _, userId := range s.userMap.onlineUserIds() {
		clients, _ := s.userMap.GetAll(userId)
		for _, client := range clients {
			_ = client.KickOnline()
			kicked++
		}
	}
	log.CtxInfo(ctx, "websocket server shut down: kicked_conns=%d", kicked)
}

// authenticate verifies the handshake query of a new connection
func (s *WsServer) authenticate(token, sendId, platformIdStr string) (*jwt.Claims, error) {
	if token == "" || sendId == "" {
		return nil, errcode.ErrTokenMissing
	}
	platformId := 0
	if platformIdStr != "" {
		platformId, _ = strconv.Atoi(platformIdStr)
	}
	return jwt.ValidateToken(token, s.cfg.JWT.Secret, sendId, platformId)
}

// overLimit reports whether the instance is at its connection limit
func (s *WsServer) overLimit() bool {
	return s.maxConnNum > 0 && s.onlineConnNum.Load() >= s.maxConnNum
}

// HandleConnection handles a new WebSocket connection on a net/http server
func (s *WsServer) HandleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if s.overLimit() {
		http.Error(w, "connection limit exceeded", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	claims, err := s.authenticate(q.Get(QueryToken), q.Get(QuerySendId), q.Get(QueryPlatformId))
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", q.Get(QuerySendId), err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	wsConn := NewWebSocketClientConn(conn, &s.cfg.WebSocket)
	client := NewClient(wsConn, claims.UserId, claims.Role, claims.PlatformId, q.Get(QuerySDKType), uuid.NewString(), s)

	s.registerChan <- client
	client.Start()
}

// AsyncPushToUsers queues evt for every connection of userIds. Events of one
// conversation share a worker and are delivered in the order they were queued.
func (s *WsServer) AsyncPushToUsers(ctx context.Context, evt *entity.PushEvent, userIds []string) {
	task := &PushTask{Event: evt, TargetIds: userIds}
	if d, ok := evt.Data.(*entity.MessageDeliveredData); ok && d.Message != nil {
		task.MessageId = d.Message.Id
		task.SenderId = d.Message.SenderId
	}
	s.enqueue(task)
}

func (s *WsServer) enqueue(task *PushTask) {
	select {
	case s.pushShards[s.shardFor(task)] <- task:
	default:
		metrics.DroppedPushes.Inc()
		log.Warn("push channel full, event dropped: type=%s, conversation_id=%s", task.Event.Type, task.Event.ConversationId)
	}
}

// shardFor picks the worker of the task's conversation
func (s *WsServer) shardFor(task *PushTask) int {
	key := task.Event.ConversationId
	if key == "" && len(task.TargetIds) > 0 {
		key = task.TargetIds[0]
	}
	return int(xxhash.Sum64String(key) % uint64(len(s.pushShards)))
}

// IsOnline reports whether userId has a live connection on any instance
func (s *WsServer) IsOnline(ctx context.Context, userId string) bool {
	return s.userMap.IsOnline(ctx, userId)
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// OriginAllowed validates an Origin header against the allowed origins
func OriginAllowed(origin string, allowedOrigins []string) bool {
	// non-browser clients send no origin
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// ========== Command Handlers ==========

// HandleCommand runs one client command and returns the command_ack result
func (s *WsServer) HandleCommand(ctx context.Context, client *Client, cmd *Command) (any, error) {
	switch cmd.Type {
	case CmdSendMessage:
		return s.HandleSendMessage(ctx, client, cmd)
	case CmdMarkRead:
		return s.HandleMarkRead(ctx, client, cmd)
	case CmdAcceptConversation, CmdCompleteConversation, CmdCancelConversation:
		return s.HandleTransition(ctx, client, cmd)
	case CmdRejectConversation:
		return s.HandleReject(ctx, client, cmd)
	case CmdListMessages:
		return s.HandleListMessages(ctx, client, cmd)
	case CmdUnreadSummary:
		return s.unreadService.Summary(ctx, client.UserId)
	default:
		return nil, errcode.ErrInvalidProtocol
	}
}

// decode unmarshals and validates a command payload
func (s *WsServer) decode(cmd *Command, v any) error {
	if len(cmd.Data) == 0 {
		return errcode.ErrInvalidParam
	}
	if err := json.Unmarshal(cmd.Data, v); err != nil {
		return errcode.ErrInvalidParam
	}
	if err := s.validate.Struct(v); err != nil {
		return errcode.ErrInvalidParam
	}
	return nil
}

// HandleSendMessage handles send_message
func (s *WsServer) HandleSendMessage(ctx context.Context, client *Client, cmd *Command) (any, error) {
	var data SendMessageData
	if err := s.decode(cmd, &data); err != nil {
		return nil, err
	}
	return s.msgService.Send(ctx, client.UserId, &service.SendMessageRequest{
		ConversationId: data.ConversationId,
		ClientMsgId:    data.CorrelationToken,
		MsgType:        data.MsgType,
		Content:        data.Content,
	})
}

// HandleMarkRead handles mark_read
func (s *WsServer) HandleMarkRead(ctx context.Context, client *Client, cmd *Command) (any, error) {
	var data ConversationData
	if err := s.decode(cmd, &data); err != nil {
		return nil, err
	}
	n, err := s.msgService.MarkRead(ctx, client.UserId, data.ConversationId)
	if err != nil {
		return nil, err
	}
	return &MarkReadResult{Updated: n}, nil
}

// HandleTransition handles accept, complete and cancel
func (s *WsServer) HandleTransition(ctx context.Context, client *Client, cmd *Command) (any, error) {
	var data ConversationData
	if err := s.decode(cmd, &data); err != nil {
		return nil, err
	}
	switch cmd.Type {
	case CmdAcceptConversation:
		return s.convService.Accept(ctx, client.UserId, data.ConversationId)
	case CmdCompleteConversation:
		return s.convService.Complete(ctx, client.UserId, data.ConversationId)
	default:
		return s.convService.Cancel(ctx, client.UserId, data.ConversationId)
	}
}

// HandleReject handles reject_conversation
func (s *WsServer) HandleReject(ctx context.Context, client *Client, cmd *Command) (any, error) {
	var data RejectConversationData
	if err := s.decode(cmd, &data); err != nil {
		return nil, err
	}
	return s.convService.Reject(ctx, client.UserId, data.ConversationId, data.Reason)
}

// HandleListMessages handles list_messages
func (s *WsServer) HandleListMessages(ctx context.Context, client *Client, cmd *Command) (any, error) {
	var data ListMessagesData
	if err := s.decode(cmd, &data); err != nil {
		return nil, err
	}
	return s.msgService.ListPage(ctx, client.UserId, data.ConversationId, data.Cursor, data.Limit)
}
