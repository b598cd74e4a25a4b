package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/pkg/errcode"
	"github.com/mbeoliero/trato/pkg/metrics"
)

// Client represents a connected WebSocket client.
// Commands of one client are handled in arrival order by its read loop.
type Client struct {
	mu         sync.Mutex
	conn       ClientConn
	UserId     string
	Role       string
	PlatformId int
	SDKType    string
	ConnId     string
	server     *WsServer
	closed     atomic.Bool
	closedErr  error
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId, role string, platformId int, sdkType, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		UserId:     userId,
		Role:       role,
		PlatformId: platformId,
		SDKType:    sdkType,
		ConnId:     connId,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "closing connection: user_id=%s, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming command. A non-nil return closes
// the connection: the reply could not be written or storage is unavailable.
func (c *Client) handleMessage(message []byte) error {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil || cmd.Type == "" {
		return c.reply(&cmd, nil, errcode.ErrInvalidProtocol)
	}

	log.CtxDebug(c.ctx, "received command: type=%s, operation_id=%s, user_id=%s", cmd.Type, cmd.OperationId, c.UserId)

	result, err := c.server.HandleCommand(c.ctx, c, &cmd)
	if writeErr := c.reply(&cmd, result, err); writeErr != nil {
		return writeErr
	}
	if errcode.IsFatal(err) {
		return err
	}
	return nil
}

// reply acknowledges cmd. A failed send_message is answered with
// send_rejected so the client can settle the matching optimistic message.
func (c *Client) reply(cmd *Command, result any, err error) error {
	if err == nil {
		return c.writeFrame(&Frame{
			Type:        FrameCommandAck,
			OperationId: cmd.OperationId,
			Data:        &AckData{Command: cmd.Type, Ok: true, Result: result},
		})
	}

	e := errcode.From(err)
	metrics.RejectedCommands.WithLabelValues(commandLabel(cmd.Type), e.Kind).Inc()

	if cmd.Type == CmdSendMessage {
		var data SendMessageData
		_ = json.Unmarshal(cmd.Data, &data)
		return c.writeFrame(&Frame{
			Type:        entity.PushSendRejected,
			OperationId: cmd.OperationId,
			Data: &entity.SendRejectedData{
				ConversationId:   data.ConversationId,
				CorrelationToken: data.CorrelationToken,
				ErrorKind:        e.Kind,
			},
		})
	}

	return c.writeFrame(&Frame{
		Type:        FrameCommandAck,
		OperationId: cmd.OperationId,
		Data:        &AckData{Command: cmd.Type, ErrorKind: e.Kind},
	})
}

// writeFrame writes a frame to the connection
func (c *Client) writeFrame(frame *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

// Push writes a push event to the client
func (c *Client) Push(evt *entity.PushEvent) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.writeFrame(newEventFrame(evt))
}

// KickOnline sends kick message and closes connection
func (c *Client) KickOnline() error {
	_ = c.writeFrame(&Frame{Type: FrameKick})
	return c.Close()
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	_ = c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

func commandLabel(typ string) string {
	switch typ {
	case CmdSendMessage, CmdMarkRead, CmdAcceptConversation, CmdRejectConversation,
		CmdCompleteConversation, CmdCancelConversation, CmdListMessages, CmdUnreadSummary:
		return typ
	default:
		return "unknown"
	}
}
