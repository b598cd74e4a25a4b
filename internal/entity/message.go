package entity

import (
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/mbeoliero/trato/pkg/errcode"
)

// Message is an immutable entry in a conversation log. Only IsRead ever
// changes, and only from false to true.
type Message struct {
	Id             int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement;index:idx_messages_conv_order,priority:3"`
	ConversationId string  `json:"conversation_id" gorm:"column:conversation_id;type:varchar(32);not null;index:idx_messages_conv_order,priority:1"`
	SenderId       string  `json:"sender_id" gorm:"column:sender_id;type:varchar(64);not null;uniqueIndex:uk_messages_sender_client_msg,priority:1"`
	ClientMsgId    *string `json:"client_msg_id,omitempty" gorm:"column:client_msg_id;type:varchar(64);uniqueIndex:uk_messages_sender_client_msg,priority:2"`
	MsgType        string  `json:"message_type" gorm:"column:msg_type;type:varchar(16);not null"`
	Content        string  `json:"content" gorm:"column:content;type:text;not null"`
	IsRead         bool    `json:"is_read" gorm:"column:is_read;not null;default:false"`
	CreatedAt      int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli;index:idx_messages_conv_order,priority:2"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// CorrelationToken returns the client supplied token, or "" for system messages
func (m *Message) CorrelationToken() string {
	if m.ClientMsgId == nil {
		return ""
	}
	return *m.ClientMsgId
}

// NormalizeContent trims content and checks it is non-empty and within bounds
func NormalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > constant.MaxContentLength {
		return "", errcode.ErrInvalidContent
	}
	return content, nil
}

// Summary returns a short preview of the content for notifications
func (m *Message) Summary(maxRunes int) string {
	if utf8.RuneCountInString(m.Content) <= maxRunes {
		return m.Content
	}
	runes := []rune(m.Content)
	return string(runes[:maxRunes]) + "..."
}
