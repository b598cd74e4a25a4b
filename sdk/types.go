package sdk

import "encoding/json"

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Kind string          `json:"kind,omitempty"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BookingContext is display data of the booking a conversation belongs to
type BookingContext struct {
	Title    string `json:"title,omitempty"`
	Price    int64  `json:"price,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Conversation represents a customer/provider conversation
type Conversation struct {
	Id             string         `json:"id"`
	CustomerId     string         `json:"customer_id"`
	ProviderId     string         `json:"provider_id"`
	BookingId      string         `json:"booking_id"`
	InitiatorId    string         `json:"initiator_id"`
	Status         string         `json:"status"`
	RejectReason   string         `json:"reject_reason,omitempty"`
	BookingContext BookingContext `json:"booking_context"`
	CreatedAt      int64          `json:"created_at"`
	UpdatedAt      int64          `json:"updated_at"`
}

// ConversationInfo is a conversation as seen by the current user
type ConversationInfo struct {
	Conversation
	PeerId        string   `json:"peer_id"`
	UnreadCount   int64    `json:"unread_count"`
	LastMessage   *Message `json:"last_message,omitempty"`
	LastMessageAt *int64   `json:"last_message_at,omitempty"`
}

// Message represents a stored message
type Message struct {
	Id             int64  `json:"id"`
	ConversationId string `json:"conversation_id"`
	SenderId       string `json:"sender_id"`
	ClientMsgId    string `json:"client_msg_id,omitempty"`
	MsgType        string `json:"message_type"`
	Content        string `json:"content"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      int64  `json:"created_at"`
}

// MessagePage is one page of history, oldest first
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}

// UnreadEntry is the unread state of one conversation
type UnreadEntry struct {
	ConversationId string `json:"conversation_id"`
	UnreadCount    int64  `json:"unread_count"`
	LastMessageAt  *int64 `json:"last_message_at,omitempty"`
}

// UnreadSummary is the unread state of every conversation of the current user
type UnreadSummary struct {
	Total         int64          `json:"total"`
	Conversations []*UnreadEntry `json:"conversations"`
}

// CreateConversationRequest opens a conversation with a peer
type CreateConversationRequest struct {
	PeerId    string `json:"peer_id"`
	BookingId string `json:"booking_id,omitempty"`
}

// CreateConversationResponse is the result of CreateConversation
type CreateConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	Created      bool          `json:"created"`
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id"`
	MsgType        string `json:"message_type,omitempty"`
	Content        string `json:"content"`
}

// PeerPresence reports whether the other participant is connected
type PeerPresence struct {
	PeerId string `json:"peer_id"`
	Online bool   `json:"online"`
}
