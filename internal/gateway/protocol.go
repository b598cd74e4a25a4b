package gateway

import (
	"encoding/json"

	"github.com/mbeoliero/trato/internal/entity"
)

// Command is a client-to-server frame
type Command struct {
	Type        string          `json:"type"`
	OperationId string          `json:"operation_id"` // echoed back in the reply
	Data        json.RawMessage `json:"data"`
}

// Frame is a server-to-client frame
type Frame struct {
	Type        string `json:"type"`
	OperationId string `json:"operation_id,omitempty"`
	Data        any    `json:"data,omitempty"`
}

// AckData is the payload of command_ack
type AckData struct {
	Command   string `json:"command"`
	Ok        bool   `json:"ok"`
	ErrorKind string `json:"error_kind,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// SendMessageData is the payload of send_message
type SendMessageData struct {
	ConversationId   string `json:"conversation_id" validate:"required,max=32"`
	CorrelationToken string `json:"correlation_token" validate:"required,max=64"`
	MsgType          string `json:"message_type" validate:"omitempty,max=16"`
	Content          string `json:"content"`
}

// ConversationData is the payload of commands addressing one conversation
type ConversationData struct {
	ConversationId string `json:"conversation_id" validate:"required,max=32"`
}

// RejectConversationData is the payload of reject_conversation
type RejectConversationData struct {
	ConversationId string `json:"conversation_id" validate:"required,max=32"`
	Reason         string `json:"reason" validate:"max=1000"`
}

// ListMessagesData is the payload of list_messages
type ListMessagesData struct {
	ConversationId string `json:"conversation_id" validate:"required,max=32"`
	Cursor         string `json:"cursor" validate:"max=128"`
	Limit          int    `json:"limit" validate:"min=0,max=100"`
}

// MarkReadResult is the command_ack result of mark_read
type MarkReadResult struct {
	Updated int64 `json:"updated"`
}

// newEventFrame wraps a push event for the wire
func newEventFrame(evt *entity.PushEvent) *Frame {
	return &Frame{Type: evt.Type, Data: evt.Data}
}
