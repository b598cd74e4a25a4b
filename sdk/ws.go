package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned when writing to a closed WSClient
var ErrClosed = errors.New("sdk: websocket closed")

// Event is one server frame
type Event struct {
	Type        string          `json:"type"`
	OperationId string          `json:"operation_id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the event payload into v
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// CommandAck is the payload of command_ack
type CommandAck struct {
	Command   string          `json:"command"`
	Ok        bool            `json:"ok"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// MessageDelivered is the payload of message_delivered
type MessageDelivered struct {
	ConversationId   string   `json:"conversation_id"`
	Message          *Message `json:"message"`
	CorrelationToken string   `json:"correlation_token,omitempty"`
}

// SendRejected is the payload of send_rejected
type SendRejected struct {
	ConversationId   string `json:"conversation_id"`
	CorrelationToken string `json:"correlation_token"`
	ErrorKind        string `json:"error_kind"`
}

// StatusChanged is the payload of conversation_status_changed
type StatusChanged struct {
	ConversationId string `json:"conversation_id"`
	Status         string `json:"status"`
	ActorId        string `json:"actor_id"`
}

// UnreadChanged is the payload of unread_summary_changed
type UnreadChanged struct {
	ConversationId string `json:"conversation_id"`
	UnreadCount    int64  `json:"unread_count"`
}

// MessageStatus is the payload of message_status
type MessageStatus struct {
	ConversationId string `json:"conversation_id"`
	MessageId      int64  `json:"message_id,omitempty"`
	Status         string `json:"status"`
	ReaderId       string `json:"reader_id,omitempty"`
}

type command struct {
	Type        string      `json:"type"`
	OperationId string      `json:"operation_id"`
	Data        interface{} `json:"data"`
}

// WSClient is a realtime connection. Send results settle the Outbox before
// the event is handed to Events, which callers must keep draining.
type WSClient struct {
	conn   *websocket.Conn
	userId string
	outbox *Outbox

	writeMu sync.Mutex
	events  chan *Event
	done    chan struct{}
	err     error
}

// DialWS opens a realtime connection. baseURL is the HTTP base url of the service.
func DialWS(ctx context.Context, baseURL, token, userId string, platformId int) (*WSClient, error) {
	wsURL := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	query := url.Values{}
	query.Set("token", token)
	query.Set("send_id", userId)
	query.Set("platform_id", strconv.Itoa(platformId))
	query.Set("sdk_type", SDKTypeGo)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"/ws?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}

	c := &WSClient{
		conn:   conn,
		userId: userId,
		outbox: NewOutbox(),
		events: make(chan *Event, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Outbox returns the optimistic message state of this connection
func (c *WSClient) Outbox() *Outbox {
	return c.outbox
}

// Events returns server frames in arrival order. It is closed when the connection ends.
func (c *WSClient) Events() <-chan *Event {
	return c.events
}

// Err returns the error that ended the connection
func (c *WSClient) Err() error {
	<-c.done
	return c.err
}

// SendText adds an optimistic message and sends it
func (c *WSClient) SendText(conversationId, text string) (*OutboxEntry, error) {
	entry := c.outbox.Add(conversationId, MsgTypeText, text)
	return entry, c.send(entry)
}

// Resend retries a failed message with its original correlation token
func (c *WSClient) Resend(token string) error {
	entry, ok := c.outbox.Retry(token)
	if !ok {
		return fmt.Errorf("sdk: no failed message for token %s", token)
	}
	return c.send(entry)
}

func (c *WSClient) send(entry *OutboxEntry) error {
	_, err := c.Command(CmdSendMessage, map[string]string{
		"conversation_id":   entry.ConversationId,
		"correlation_token": entry.Token,
		"message_type":      entry.MsgType,
		"content":           entry.Content,
	})
	return err
}

// MarkRead marks the conversation read
func (c *WSClient) MarkRead(conversationId string) (string, error) {
	return c.Command(CmdMarkRead, map[string]string{"conversation_id": conversationId})
}

// Command writes a command and returns its operation id, echoed back in the reply
func (c *WSClient) Command(typ string, data interface{}) (string, error) {
	cmd := &command{Type: typ, OperationId: uuid.NewString(), Data: data}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return "", ErrClosed
	default:
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return "", err
	}
	return cmd.OperationId, nil
}

// Close closes the connection
func (c *WSClient) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (c *WSClient) readLoop() {
	defer func() {
		close(c.done)
		close(c.events)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			continue
		}
		c.settle(&evt)
		c.events <- &evt
	}
}

// settle applies send outcomes to the outbox
func (c *WSClient) settle(evt *Event) {
	switch evt.Type {
	case EventMessageDelivered:
		var data MessageDelivered
		if evt.Decode(&data) == nil && data.Message != nil && data.Message.SenderId == c.userId {
			c.outbox.Confirm(data.Message)
		}
	case EventSendRejected:
		var data SendRejected
		if evt.Decode(&data) == nil {
			c.outbox.Reject(data.CorrelationToken, data.ErrorKind)
		}
	case EventCommandAck:
		var ack CommandAck
		if evt.Decode(&ack) != nil || ack.Command != CmdSendMessage || !ack.Ok {
			return
		}
		var msg Message
		if json.Unmarshal(ack.Result, &msg) == nil {
			c.outbox.Confirm(&msg)
		}
	}
}
