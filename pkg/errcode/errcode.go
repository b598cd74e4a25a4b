package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error.
// Kind is the stable name sent to realtime clients as error_kind.
type Error struct {
	Code int    `json:"code"`
	Kind string `json:"kind"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, kind: %s, msg: %s", e.Code, e.Kind, e.Msg)
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new error with code, kind and message
func New(code int, kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Kind: e.Kind,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// From extracts an *Error from err, falling back to ErrInternalServer
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternalServer
}

// IsFatal reports whether err means the storage layer is unreachable.
// Realtime connections that see a fatal error are closed so the client reconnects.
func IsFatal(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

var (
	ErrSuccess = New(0, "Success", "success")

	// Common errors (1xxx)
	ErrInvalidParam       = New(1001, "InvalidParam", "invalid parameter")
	ErrInternalServer     = New(1002, "Internal", "internal server error")
	ErrUnauthorized       = New(1003, "Unauthorized", "unauthorized")
	ErrForbidden          = New(1004, "Forbidden", "forbidden")
	ErrNotFound           = New(1005, "NotFound", "not found")
	ErrServiceUnavailable = New(1008, "ServiceUnavailable", "service unavailable")

	// Auth errors (2xxx)
	ErrTokenInvalid  = New(2001, "TokenInvalid", "token invalid")
	ErrTokenExpired  = New(2002, "TokenExpired", "token expired")
	ErrTokenMissing  = New(2003, "TokenMissing", "token missing")
	ErrTokenMismatch = New(2004, "TokenMismatch", "token user mismatch")

	// Conversation and message errors (4xxx)
	ErrMessageNotFound              = New(4001, "MessageNotFound", "message not found")
	ErrConversationNotFound         = New(4003, "ConversationNotFound", "conversation not found")
	ErrNotAParticipant              = New(4101, "NotAParticipant", "not a participant of the conversation")
	ErrInvalidContent               = New(4102, "InvalidContent", "content is empty or too long")
	ErrConversationNotActive        = New(4103, "ConversationNotActive", "conversation is not active")
	ErrConversationClosed           = New(4104, "ConversationClosed", "conversation is closed")
	ErrConversationAlreadyProcessed = New(4105, "ConversationAlreadyProcessed", "conversation state already changed")
	ErrSelfConversationNotAllowed   = New(4106, "SelfConversationNotAllowed", "cannot open a conversation with yourself")
	ErrRoleNotAllowed               = New(4107, "RoleNotAllowed", "role is not allowed to perform this action")
	ErrInvalidMessageType           = New(4108, "InvalidMessageType", "message type is not allowed")

	// WebSocket errors (5xxx)
	ErrConnOverLimit   = New(5001, "ConnOverLimit", "connection over max limit")
	ErrConnClosed      = New(5002, "ConnClosed", "connection closed")
	ErrInvalidProtocol = New(5003, "InvalidProtocol", "invalid protocol")
)
