package gateway

import "time"

// Client-to-server command types
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

// Server-to-client frame types besides the entity push events
const (
	FrameCommandAck = "command_ack"
	FrameKick       = "kick"
)

// Query parameter keys
const (
	QueryToken      = "token"
	QuerySendId     = "send_id"
	QueryPlatformId = "platform_id"
	QuerySDKType    = "sdk_type"
)

// SDK types
const (
	SDKTypeGo = "go"
	SDKTypeJS = "js"
)

// presenceTTL is the lifetime of a Redis online marker; live users are
// refreshed every presenceTTL/2
const presenceTTL = 60 * time.Second
