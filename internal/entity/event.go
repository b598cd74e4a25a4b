package entity

// Push event types sent to realtime clients
const (
	PushMessageDelivered          = "message_delivered"
	PushConversationStatusChanged = "conversation_status_changed"
	PushSendRejected              = "send_rejected"
	PushUnreadSummaryChanged      = "unread_summary_changed"
	PushMessageStatus             = "message_status"
)

// Message status values carried by message_status events
const (
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// StatusDeleted is reported in conversation_status_changed after a conversation was deleted
const StatusDeleted = "deleted"

// PushEvent is a server-to-client event routed to every live connection of its targets.
// Events of the same conversation are delivered in the order they were queued.
type PushEvent struct {
	Type           string `json:"type"`
	ConversationId string `json:"conversation_id"`
	Data           any    `json:"data"`
}

// MessageDeliveredData is the payload of message_delivered
type MessageDeliveredData struct {
	ConversationId   string   `json:"conversation_id"`
	Message          *Message `json:"message"`
	CorrelationToken string   `json:"correlation_token,omitempty"`
}

// StatusChangedData is the payload of conversation_status_changed
type StatusChangedData struct {
	ConversationId string `json:"conversation_id"`
	Status         string `json:"status"`
	ActorId        string `json:"actor_id"`
}

// SendRejectedData is the payload of send_rejected
type SendRejectedData struct {
	ConversationId   string `json:"conversation_id"`
	CorrelationToken string `json:"correlation_token"`
	ErrorKind        string `json:"error_kind"`
}

// UnreadChangedData is the payload of unread_summary_changed
type UnreadChangedData struct {
	ConversationId string `json:"conversation_id"`
	UnreadCount    int64  `json:"unread_count"`
}

// MessageStatusData is the payload of message_status
type MessageStatusData struct {
	ConversationId string `json:"conversation_id"`
	MessageId      int64  `json:"message_id,omitempty"`
	Status         string `json:"status"`
	ReaderId       string `json:"reader_id,omitempty"`
}

// NewMessageDelivered builds a message_delivered event
func NewMessageDelivered(msg *Message) *PushEvent {
	return &PushEvent{
		Type:           PushMessageDelivered,
		ConversationId: msg.ConversationId,
		Data: &MessageDeliveredData{
			ConversationId:   msg.ConversationId,
			Message:          msg,
			CorrelationToken: msg.CorrelationToken(),
		},
	}
}

// NewStatusChanged builds a conversation_status_changed event
func NewStatusChanged(conv *Conversation, actorId string) *PushEvent {
	return &PushEvent{
		Type:           PushConversationStatusChanged,
		ConversationId: conv.Id,
		Data: &StatusChangedData{
			ConversationId: conv.Id,
			Status:         conv.Status,
			ActorId:        actorId,
		},
	}
}

// NewUnreadChanged builds an unread_summary_changed event
func NewUnreadChanged(conversationId string, unreadCount int64) *PushEvent {
	return &PushEvent{
		Type:           PushUnreadSummaryChanged,
		ConversationId: conversationId,
		Data: &UnreadChangedData{
			ConversationId: conversationId,
			UnreadCount:    unreadCount,
		},
	}
}

// NewMessageStatus builds a message_status event
func NewMessageStatus(conversationId string, messageId int64, status, readerId string) *PushEvent {
	return &PushEvent{
		Type:           PushMessageStatus,
		ConversationId: conversationId,
		Data: &MessageStatusData{
			ConversationId: conversationId,
			MessageId:      messageId,
			Status:         status,
			ReaderId:       readerId,
		},
	}
}

// Notification event types handed to the notification collaborator
const (
	NotifyConversationAccepted  = "conversation_accepted"
	NotifyConversationRejected  = "conversation_rejected"
	NotifyConversationCompleted = "conversation_completed"
	NotifyConversationCancelled = "conversation_cancelled"
	NotifyNewMessage            = "new_message"
)

// NotificationEvent is the payload published to the notification collaborator
type NotificationEvent struct {
	EventType      string `json:"event_type"`
	ConversationId string `json:"conversation_id"`
	ActorId        string `json:"actor_id"`
	RecipientId    string `json:"recipient_id"`
	SummaryText    string `json:"summary_text"`
	OccurredAt     int64  `json:"occurred_at"`
}
