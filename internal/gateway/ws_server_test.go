package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/trato/internal/config"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/internal/repository"
	"github.com/mbeoliero/trato/internal/service"
	"github.com/mbeoliero/trato/internal/testutil"
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/mbeoliero/trato/pkg/errcode"
	"github.com/mbeoliero/trato/pkg/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	customerId = "7"
	providerId = "9"
)

func newTestConfig() *config.Config {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.WebSocket.PushWorkerNum = 4
	cfg.SetDefaults()
	return cfg
}

type testEnv struct {
	cfg    *config.Config
	repos  *repository.Repositories
	convs  *service.ConversationService
	msgs   *service.MessageService
	unread *service.UnreadService
	server *WsServer
	url    string
}

func newServices(repos *repository.Repositories) (*service.ConversationService, *service.MessageService, *service.UnreadService) {
	return service.NewConversationService(repos), service.NewMessageService(repos), service.NewUnreadService(repos)
}

// newTestEnv starts a websocket server whose services push through it
func newTestEnv(t *testing.T, rdb *redis.Client) *testEnv {
	t.Helper()
	repos := testutil.NewRepos(t)
	convs, msgs, unread := newServices(repos)
	env := &testEnv{cfg: newTestConfig(), repos: repos, convs: convs, msgs: msgs, unread: unread}
	env.server, env.url = startServer(t, env.cfg, rdb, msgs, convs, unread)
	convs.SetPusher(env.server)
	msgs.SetPusher(env.server)
	return env
}

func startServer(t *testing.T, cfg *config.Config, rdb *redis.Client, msgs *service.MessageService,
	convs *service.ConversationService, unread *service.UnreadService) (*WsServer, string) {
	t.Helper()
	server := NewWsServer(cfg, rdb, msgs, convs, unread)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, server.Run(ctx))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.HandleConnection(r.Context(), w, r)
	}))
	t.Cleanup(srv.Close)
	return server, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type rawFrame struct {
	Type        string          `json:"type"`
	OperationId string          `json:"operation_id"`
	Data        json.RawMessage `json:"data"`
}

type testConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, server *WsServer, baseURL, userId, role string) *testConn {
	t.Helper()
	token, err := jwt.GenerateToken(userId, role, constant.PlatformIdWeb, testSecret, 1)
	require.NoError(t, err)

	q := url.Values{}
	q.Set(QueryToken, token)
	q.Set(QuerySendId, userId)
	q.Set(QueryPlatformId, "5")
	conn, _, err := websocket.DefaultDialer.Dial(baseURL+"/ws?"+q.Encode(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return server.userMap.HasConnection(userId) }, 2*time.Second, 10*time.Millisecond)
	return &testConn{t: t, conn: conn}
}

func (c *testConn) send(typ, operationId string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(&Command{Type: typ, OperationId: operationId, Data: raw}))
}

// next returns the next frame of type typ, skipping others
func (c *testConn) next(typ string) rawFrame {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var f rawFrame
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", typ)
		require.NoError(c.t, json.Unmarshal(data, &f))
		if f.Type == typ {
			return f
		}
	}
}

func (c *testConn) ack(operationId string) AckData {
	c.t.Helper()
	for {
		f := c.next(FrameCommandAck)
		if f.OperationId != operationId {
			continue
		}
		var ack AckData
		require.NoError(c.t, json.Unmarshal(f.Data, &ack))
		return ack
	}
}

func decodeData[T any](t *testing.T, f rawFrame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func (e *testEnv) pending(t *testing.T) *entity.Conversation {
	t.Helper()
	conv, _, err := e.convs.Create(context.Background(), service.Actor{UserId: customerId, Role: constant.RoleCustomer},
		&service.CreateConversationRequest{PeerId: providerId})
	require.NoError(t, err)
	return conv
}

func TestWsServer_AcceptThenChat(t *testing.T) {
	env := newTestEnv(t, nil)
	conv := env.pending(t)

	customer := dial(t, env.server, env.url, customerId, constant.RoleCustomer)
	provider := dial(t, env.server, env.url, providerId, constant.RoleProvider)

	provider.send(CmdAcceptConversation, "op-1", ConversationData{ConversationId: conv.Id})
	ack := provider.ack("op-1")
	assert.True(t, ack.Ok)
	assert.Equal(t, CmdAcceptConversation, ack.Command)

	changed := decodeData[entity.StatusChangedData](t, customer.next(entity.PushConversationStatusChanged))
	assert.Equal(t, constant.ConvStatusActive, changed.Status)
	system := decodeData[entity.MessageDeliveredData](t, customer.next(entity.PushMessageDelivered))
	assert.Equal(t, constant.MsgTypeSystem, system.Message.MsgType)

	customer.send(CmdSendMessage, "op-2", SendMessageData{ConversationId: conv.Id, CorrelationToken: "tok-1", Content: "Hola, necesito ayuda"})
	ack = customer.ack("op-2")
	require.True(t, ack.Ok)

	delivered := decodeData[entity.MessageDeliveredData](t, provider.next(entity.PushMessageDelivered))
	if delivered.Message.MsgType == constant.MsgTypeSystem {
		delivered = decodeData[entity.MessageDeliveredData](t, provider.next(entity.PushMessageDelivered))
	}
	assert.Equal(t, "tok-1", delivered.CorrelationToken)
	assert.Equal(t, "Hola, necesito ayuda", delivered.Message.Content)
	assert.False(t, delivered.Message.IsRead)

	unread := decodeData[entity.UnreadChangedData](t, provider.next(entity.PushUnreadSummaryChanged))
	assert.Equal(t, conv.Id, unread.ConversationId)
	assert.EqualValues(t, 1, unread.UnreadCount)

	// the sender learns the message reached the provider
	for {
		status := decodeData[entity.MessageStatusData](t, customer.next(entity.PushMessageStatus))
		if status.MessageId == delivered.Message.Id {
			assert.Equal(t, entity.MessageStatusDelivered, status.Status)
			break
		}
	}

	provider.send(CmdMarkRead, "op-3", ConversationData{ConversationId: conv.Id})
	ack = provider.ack("op-3")
	require.True(t, ack.Ok)
	result := ack.Result.(map[string]any)
	assert.EqualValues(t, 1, result["updated"])

	read := decodeData[entity.MessageStatusData](t, customer.next(entity.PushMessageStatus))
	for read.Status != entity.MessageStatusRead {
		read = decodeData[entity.MessageStatusData](t, customer.next(entity.PushMessageStatus))
	}
	assert.Equal(t, providerId, read.ReaderId)
}

func TestWsServer_SendMessageHonorsMessageType(t *testing.T) {
	env := newTestEnv(t, nil)
	conv := env.pending(t)
	_, err := env.convs.Accept(context.Background(), providerId, conv.Id)
	require.NoError(t, err)

	provider := dial(t, env.server, env.url, providerId, constant.RoleProvider)
	provider.send(CmdSendMessage, "op-1", map[string]string{
		"conversation_id":   conv.Id,
		"correlation_token": "tok-img",
		"message_type":      "image",
		"content":           "https://cdn.example.com/x.png",
	})
	require.True(t, provider.ack("op-1").Ok)

	delivered := decodeData[entity.MessageDeliveredData](t, provider.next(entity.PushMessageDelivered))
	for delivered.CorrelationToken != "tok-img" {
		delivered = decodeData[entity.MessageDeliveredData](t, provider.next(entity.PushMessageDelivered))
	}
	assert.Equal(t, "image", delivered.Message.MsgType)

	raw, err := json.Marshal(delivered.Message)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message_type":"image"`)
}

func TestWsServer_SendRejectedCarriesCorrelationToken(t *testing.T) {
	env := newTestEnv(t, nil)
	conv := env.pending(t)
	provider := dial(t, env.server, env.url, providerId, constant.RoleProvider)

	provider.send(CmdSendMessage, "op-1", SendMessageData{ConversationId: conv.Id, CorrelationToken: "tok-9", Content: "hello"})
	f := provider.next(entity.PushSendRejected)
	assert.Equal(t, "op-1", f.OperationId)

	rejected := decodeData[entity.SendRejectedData](t, f)
	assert.Equal(t, "tok-9", rejected.CorrelationToken)
	assert.Equal(t, conv.Id, rejected.ConversationId)
	assert.Equal(t, errcode.ErrConversationNotActive.Kind, rejected.ErrorKind)

	page, err := env.msgs.ListPage(context.Background(), customerId, conv.Id, "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestWsServer_InvalidCommandsKeepConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	conv := env.pending(t)
	customer := dial(t, env.server, env.url, customerId, constant.RoleCustomer)

	require.NoError(t, customer.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ack := decodeData[AckData](t, customer.next(FrameCommandAck))
	assert.Equal(t, errcode.ErrInvalidProtocol.Kind, ack.ErrorKind)

	customer.send("teleport", "op-1", ConversationData{ConversationId: conv.Id})
	assert.Equal(t, errcode.ErrInvalidProtocol.Kind, customer.ack("op-1").ErrorKind)

	customer.send(CmdMarkRead, "op-2", map[string]string{})
	assert.Equal(t, errcode.ErrInvalidParam.Kind, customer.ack("op-2").ErrorKind)

	customer.send(CmdAcceptConversation, "op-3", ConversationData{ConversationId: conv.Id})
	assert.Equal(t, errcode.ErrRoleNotAllowed.Kind, customer.ack("op-3").ErrorKind)

	customer.send(CmdUnreadSummary, "op-4", struct{}{})
	ack = customer.ack("op-4")
	assert.True(t, ack.Ok)
	assert.True(t, env.server.userMap.HasConnection(customerId))
}

func TestWsServer_ListMessagesAndCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	conv := env.pending(t)
	_, err := env.convs.Accept(context.Background(), providerId, conv.Id)
	require.NoError(t, err)

	customer := dial(t, env.server, env.url, customerId, constant.RoleCustomer)
	for i := 0; i < 3; i++ {
		customer.send(CmdSendMessage, "send", SendMessageData{ConversationId: conv.Id, CorrelationToken: "tok-" + string(rune('a'+i)), Content: "m"})
		require.True(t, customer.ack("send").Ok)
	}

	customer.send(CmdListMessages, "list", ListMessagesData{ConversationId: conv.Id, Limit: 2})
	ack := customer.ack("list")
	require.True(t, ack.Ok)
	raw, err := json.Marshal(ack.Result)
	require.NoError(t, err)
	var page service.MessagePage
	require.NoError(t, json.Unmarshal(raw, &page))
	assert.Len(t, page.Messages, 2)
	assert.NotEmpty(t, page.NextCursor)
	assert.True(t, page.HasMore)

	customer.send(CmdCancelConversation, "cancel", ConversationData{ConversationId: conv.Id})
	require.True(t, customer.ack("cancel").Ok)

	customer.send(CmdSendMessage, "late", SendMessageData{ConversationId: conv.Id, CorrelationToken: "tok-z", Content: "m"})
	rejected := decodeData[entity.SendRejectedData](t, customer.next(entity.PushSendRejected))
	assert.Equal(t, errcode.ErrConversationClosed.Kind, rejected.ErrorKind)
}

func TestWsServer_OrderWithinConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	conv := env.pending(t)
	_, err := env.convs.Accept(context.Background(), providerId, conv.Id)
	require.NoError(t, err)

	customer := dial(t, env.server, env.url, customerId, constant.RoleCustomer)
	provider := dial(t, env.server, env.url, providerId, constant.RoleProvider)

	const n = 15
	for i := 0; i < n; i++ {
		customer.send(CmdSendMessage, "", SendMessageData{ConversationId: conv.Id, CorrelationToken: "tok-" + string(rune('A'+i)), Content: "m"})
	}

	var last int64
	for i := 0; i < n; i++ {
		delivered := decodeData[entity.MessageDeliveredData](t, provider.next(entity.PushMessageDelivered))
		assert.Greater(t, delivered.Message.Id, last)
		last = delivered.Message.Id
	}
}

func TestWsServer_StorageFailureClosesConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	customer := dial(t, env.server, env.url, customerId, constant.RoleCustomer)

	sqlDB, err := env.repos.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	customer.send(CmdUnreadSummary, "op-1", struct{}{})
	assert.Equal(t, errcode.ErrServiceUnavailable.Kind, customer.ack("op-1").ErrorKind)

	require.NoError(t, customer.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := customer.conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return !env.server.userMap.HasConnection(customerId) }, 2*time.Second, 10*time.Millisecond)
}

func TestWsServer_RejectsBadHandshake(t *testing.T) {
	env := newTestEnv(t, nil)

	token, err := jwt.GenerateToken(customerId, constant.RoleCustomer, constant.PlatformIdWeb, testSecret, 1)
	require.NoError(t, err)

	tests := []struct {
		name  string
		query url.Values
	}{
		{"missing token", url.Values{QuerySendId: {customerId}}},
		{"wrong secret", url.Values{QueryToken: {"garbage"}, QuerySendId: {customerId}, QueryPlatformId: {"5"}}},
		{"user mismatch", url.Values{QueryToken: {token}, QuerySendId: {providerId}, QueryPlatformId: {"5"}}},
		{"platform mismatch", url.Values{QueryToken: {token}, QuerySendId: {customerId}, QueryPlatformId: {"1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(env.url+"/ws?"+tt.query.Encode(), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestWsServer_CrossInstanceFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := newTestEnv(t, rdb)
	conv := env.pending(t)
	_, err := env.convs.Accept(context.Background(), providerId, conv.Id)
	require.NoError(t, err)

	// a second instance over the same storage that only relays
	other, otherURL := startServer(t, env.cfg, rdb, env.msgs, env.convs, env.unread)

	customer := dial(t, env.server, env.url, customerId, constant.RoleCustomer)
	provider := dial(t, other, otherURL, providerId, constant.RoleProvider)

	assert.True(t, env.server.IsOnline(context.Background(), providerId))
	assert.True(t, other.IsOnline(context.Background(), customerId))

	msg, err := env.msgs.Send(context.Background(), customerId, &service.SendMessageRequest{ConversationId: conv.Id, ClientMsgId: "tok-x", Content: "across"})
	require.NoError(t, err)

	delivered := decodeData[entity.MessageDeliveredData](t, provider.next(entity.PushMessageDelivered))
	for delivered.Message.Id != msg.Id {
		delivered = decodeData[entity.MessageDeliveredData](t, provider.next(entity.PushMessageDelivered))
	}
	assert.Equal(t, "across", delivered.Message.Content)

	status := decodeData[entity.MessageStatusData](t, customer.next(entity.PushMessageStatus))
	for status.MessageId != msg.Id {
		status = decodeData[entity.MessageStatusData](t, customer.next(entity.PushMessageStatus))
	}
	assert.Equal(t, entity.MessageStatusDelivered, status.Status)
}

func TestUserMap_PresenceInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	m := NewUserMap(rdb)
	first := &Client{UserId: "7", ConnId: "a"}
	second := &Client{UserId: "7", ConnId: "b"}

	assert.True(t, m.Register(ctx, first))
	assert.False(t, m.Register(ctx, second))
	assert.True(t, mr.Exists(onlineKey("7")))
	assert.True(t, m.IsOnline(ctx, "7"))

	mr.FastForward(presenceTTL - time.Second)
	m.RefreshOnlineStatus(ctx)
	mr.FastForward(presenceTTL - time.Second)
	assert.True(t, mr.Exists(onlineKey("7")))

	assert.False(t, m.Unregister(ctx, first))
	assert.False(t, m.Unregister(ctx, first))
	assert.True(t, m.Unregister(ctx, second))
	assert.False(t, mr.Exists(onlineKey("7")))
	assert.False(t, m.IsOnline(ctx, "7"))

	clients, ok := m.GetAll("7")
	assert.False(t, ok)
	assert.Empty(t, clients)
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, OriginAllowed("", nil))
	assert.False(t, OriginAllowed("https://evil.example", nil))
	assert.True(t, OriginAllowed("https://app.example", []string{"https://APP.example"}))
	assert.True(t, OriginAllowed("https://any.example", []string{"*"}))
	assert.False(t, OriginAllowed("https://other.example", []string{"https://app.example"}))
}
