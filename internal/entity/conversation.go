package entity

import (
	"github.com/mbeoliero/trato/pkg/constant"
	"gorm.io/datatypes"
)

// BookingContext is display data copied from the booking a conversation was opened for
type BookingContext struct {
	Title    string `json:"title,omitempty"`
	Price    int64  `json:"price,omitempty"` // minor units
	Currency string `json:"currency,omitempty"`
}

// Conversation is a two-party thread between a customer and a provider.
// At most one exists per (customer, provider, booking) triple; BookingId is
// empty when the conversation is not tied to a booking.
type Conversation struct {
	Id             string                             `json:"id" gorm:"column:id;primaryKey;type:varchar(32)"`
	CustomerId     string                             `json:"customer_id" gorm:"column:customer_id;type:varchar(64);not null;uniqueIndex:uk_conversation_triple,priority:1;index:idx_conversations_customer"`
	ProviderId     string                             `json:"provider_id" gorm:"column:provider_id;type:varchar(64);not null;uniqueIndex:uk_conversation_triple,priority:2;index:idx_conversations_provider"`
	BookingId      string                             `json:"booking_id" gorm:"column:booking_id;type:varchar(64);not null;default:'';uniqueIndex:uk_conversation_triple,priority:3"`
	InitiatorId    string                             `json:"initiator_id" gorm:"column:initiator_id;type:varchar(64);not null"`
	Status         string                             `json:"status" gorm:"column:status;type:varchar(16);not null"`
	RejectReason   string                             `json:"reject_reason,omitempty" gorm:"column:reject_reason;type:varchar(255)"`
	BookingContext datatypes.JSONType[BookingContext] `json:"booking_context" gorm:"column:booking_context"`
	CreatedAt      int64                              `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt      int64                              `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// IsParticipant reports whether userId is the customer or the provider
func (c *Conversation) IsParticipant(userId string) bool {
	return userId != "" && (userId == c.CustomerId || userId == c.ProviderId)
}

// PeerOf returns the other participant, or "" if userId is not a participant
func (c *Conversation) PeerOf(userId string) string {
	switch userId {
	case c.CustomerId:
		return c.ProviderId
	case c.ProviderId:
		return c.CustomerId
	default:
		return ""
	}
}

// Participants returns both participant ids
func (c *Conversation) Participants() []string {
	return []string{c.CustomerId, c.ProviderId}
}

// IsTerminal reports whether no further transitions are possible
func (c *Conversation) IsTerminal() bool {
	return IsTerminalStatus(c.Status)
}

// IsTerminalStatus reports whether status is completed, rejected or cancelled
func IsTerminalStatus(status string) bool {
	switch status {
	case constant.ConvStatusCompleted, constant.ConvStatusRejected, constant.ConvStatusCancelled:
		return true
	}
	return false
}

// ConversationInfo is a conversation as seen by one participant
type ConversationInfo struct {
	*Conversation
	PeerId        string   `json:"peer_id"`
	UnreadCount   int64    `json:"unread_count"`
	LastMessage   *Message `json:"last_message,omitempty"`
	LastMessageAt *int64   `json:"last_message_at,omitempty"`
}
