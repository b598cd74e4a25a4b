package sdk

import "fmt"

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Kind string `json:"kind"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, kind: %s, msg: %s", e.Code, e.Kind, e.Msg)
}

// Is matches errors by code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new error
func NewError(code int, kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

// Error kinds, as carried by error_kind on the websocket
const (
	KindInvalidParam                 = "InvalidParam"
	KindUnauthorized                 = "Unauthorized"
	KindServiceUnavailable           = "ServiceUnavailable"
	KindConversationNotFound         = "ConversationNotFound"
	KindNotAParticipant              = "NotAParticipant"
	KindInvalidContent               = "InvalidContent"
	KindConversationNotActive        = "ConversationNotActive"
	KindConversationClosed           = "ConversationClosed"
	KindConversationAlreadyProcessed = "ConversationAlreadyProcessed"
	KindSelfConversationNotAllowed   = "SelfConversationNotAllowed"
	KindRoleNotAllowed               = "RoleNotAllowed"
	KindInvalidMessageType           = "InvalidMessageType"
)

// Predefined errors
var (
	ErrInvalidParam       = NewError(1001, KindInvalidParam, "invalid parameter")
	ErrUnauthorized       = NewError(1003, KindUnauthorized, "unauthorized")
	ErrServiceUnavailable = NewError(1008, KindServiceUnavailable, "service unavailable")

	ErrTokenInvalid = NewError(2001, "TokenInvalid", "token invalid")
	ErrTokenExpired = NewError(2002, "TokenExpired", "token expired")
	ErrTokenMissing = NewError(2003, "TokenMissing", "token missing")

	ErrConversationNotFound         = NewError(4003, KindConversationNotFound, "conversation not found")
	ErrNotAParticipant              = NewError(4101, KindNotAParticipant, "not a participant of the conversation")
	ErrInvalidContent               = NewError(4102, KindInvalidContent, "content is empty or too long")
	ErrConversationNotActive        = NewError(4103, KindConversationNotActive, "conversation is not active")
	ErrConversationClosed           = NewError(4104, KindConversationClosed, "conversation is closed")
	ErrConversationAlreadyProcessed = NewError(4105, KindConversationAlreadyProcessed, "conversation state already changed")
	ErrSelfConversationNotAllowed   = NewError(4106, KindSelfConversationNotAllowed, "cannot open a conversation with yourself")
	ErrRoleNotAllowed               = NewError(4107, KindRoleNotAllowed, "role is not allowed to perform this action")
	ErrInvalidMessageType           = NewError(4108, KindInvalidMessageType, "message type is not allowed")
)
