package sdk

// Roles
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
)

// Conversation statuses
const (
	ConvStatusPending   = "pending"
	ConvStatusActive    = "active"
	ConvStatusRejected  = "rejected"
	ConvStatusCompleted = "completed"
	ConvStatusCancelled = "cancelled"
	ConvStatusDeleted   = "deleted" // only seen in conversation_status_changed
)

// Message types
const (
	MsgTypeText   = "text"
	MsgTypeImage  = "image"
	MsgTypeSystem = "system"
)

// WebSocket commands
const (
	CmdSendMessage          = "send_message"
	CmdMarkRead             = "mark_read"
	CmdAcceptConversation   = "accept_conversation"
	CmdRejectConversation   = "reject_conversation"
	CmdCompleteConversation = "complete_conversation"
	CmdCancelConversation   = "cancel_conversation"
	CmdListMessages         = "list_messages"
	CmdUnreadSummary        = "unread_summary"
)

// WebSocket events
const (
	EventCommandAck                = "command_ack"
	EventKick                      = "kick"
	EventMessageDelivered          = "message_delivered"
	EventConversationStatusChanged = "conversation_status_changed"
	EventSendRejected              = "send_rejected"
	EventUnreadSummaryChanged      = "unread_summary_changed"
	EventMessageStatus             = "message_status"
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// SDKTypeGo is reported to the gateway on connect
const SDKTypeGo = "go"
