package entity

import (
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/mbeoliero/trato/pkg/errcode"
)

// Event is a lifecycle event applied to an existing conversation
type Event string

const (
	EventAccept   Event = "accept"
	EventReject   Event = "reject"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
)

// Transition is one edge group of the conversation state machine
type Transition struct {
	From         []string
	To           string
	ProviderOnly bool
	Notify       string
}

// Transitions is the complete state machine. Conversation status is only
// ever written through these edges or by creation.
var Transitions = map[Event]Transition{
	EventAccept: {
		From:         []string{constant.ConvStatusPending},
		To:           constant.ConvStatusActive,
		ProviderOnly: true,
		Notify:       NotifyConversationAccepted,
	},
	EventReject: {
		From:         []string{constant.ConvStatusPending},
		To:           constant.ConvStatusRejected,
		ProviderOnly: true,
		Notify:       NotifyConversationRejected,
	},
	EventComplete: {
		From:         []string{constant.ConvStatusActive},
		To:           constant.ConvStatusCompleted,
		ProviderOnly: true,
		Notify:       NotifyConversationCompleted,
	},
	EventCancel: {
		From:   []string{constant.ConvStatusPending, constant.ConvStatusActive},
		To:     constant.ConvStatusCancelled,
		Notify: NotifyConversationCancelled,
	},
}

// Allows reports whether the transition leaves from status
func (t Transition) Allows(status string) bool {
	for _, from := range t.From {
		if from == status {
			return true
		}
	}
	return false
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Err     *errcode.Error
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return r.Err
}

func allow() GuardResult { return GuardResult{Allowed: true} }

func deny(err *errcode.Error) GuardResult { return GuardResult{Err: err} }

// CreateContext provides context for conversation creation guards.
type CreateContext struct {
	ActorId   string
	ActorRole string
	PeerId    string
}

// CanCreate evaluates whether a conversation can be opened.
// Rules:
// - Actor must hold the customer or provider role
// - Actor and peer must be distinct users
func CanCreate(ctx CreateContext) GuardResult {
	if ctx.ActorRole != constant.RoleCustomer && ctx.ActorRole != constant.RoleProvider {
		return deny(errcode.ErrRoleNotAllowed)
	}
	if ctx.ActorId == "" || ctx.PeerId == "" {
		return deny(errcode.ErrInvalidParam)
	}
	if ctx.ActorId == ctx.PeerId {
		return deny(errcode.ErrSelfConversationNotAllowed)
	}
	return allow()
}

// InitialStatus returns the status of a new conversation opened by role.
// Customers wait for the provider to accept; providers open active threads.
func InitialStatus(role string) string {
	if role == constant.RoleProvider {
		return constant.ConvStatusActive
	}
	return constant.ConvStatusPending
}

// TransitionContext provides context for lifecycle transition guards.
type TransitionContext struct {
	Conversation *Conversation
	ActorId      string
	Event        Event
}

// CanTransition evaluates whether actor may apply event to the conversation.
// Rules:
// - Actor must be a participant
// - Provider-only events require the conversation's provider
// - Current status must be a source of the edge
func CanTransition(ctx TransitionContext) GuardResult {
	t, ok := Transitions[ctx.Event]
	if !ok {
		return deny(errcode.ErrInvalidParam)
	}
	conv := ctx.Conversation
	if !conv.IsParticipant(ctx.ActorId) {
		return deny(errcode.ErrNotAParticipant)
	}
	if t.ProviderOnly && ctx.ActorId != conv.ProviderId {
		return deny(errcode.ErrRoleNotAllowed)
	}
	if t.Allows(conv.Status) {
		return allow()
	}
	return deny(RejectedTransition(ctx.Event, conv.Status))
}

// RejectedTransition classifies a missing edge
func RejectedTransition(event Event, status string) *errcode.Error {
	if event == EventComplete && status == constant.ConvStatusPending {
		return errcode.ErrConversationNotActive
	}
	return errcode.ErrConversationAlreadyProcessed
}

// SendContext provides context for the send gate.
type SendContext struct {
	Conversation *Conversation
	SenderId     string
	MsgType      string
}

// CanSend evaluates whether a message may be appended.
// Rules:
// - Sender must be a participant
// - System messages bypass the status gate
// - Pending conversations reject with ConversationNotActive
// - Terminal conversations reject with ConversationClosed
func CanSend(ctx SendContext) GuardResult {
	conv := ctx.Conversation
	if !conv.IsParticipant(ctx.SenderId) {
		return deny(errcode.ErrNotAParticipant)
	}
	if ctx.MsgType == constant.MsgTypeSystem {
		return allow()
	}
	if err := SendGate(conv.Status); err != nil {
		return deny(err)
	}
	return allow()
}

// SendGate maps a status to the error of a non-system send, nil when sending is allowed
func SendGate(status string) *errcode.Error {
	switch {
	case status == constant.ConvStatusActive:
		return nil
	case IsTerminalStatus(status):
		return errcode.ErrConversationClosed
	default:
		return errcode.ErrConversationNotActive
	}
}

// SendableStatuses returns the statuses a message of msgType may be appended in
func SendableStatuses(msgType string) []string {
	if msgType == constant.MsgTypeSystem {
		return []string{
			constant.ConvStatusPending, constant.ConvStatusActive, constant.ConvStatusRejected,
			constant.ConvStatusCompleted, constant.ConvStatusCancelled,
		}
	}
	return []string{constant.ConvStatusActive}
}

// IsClientMsgType reports whether clients may send msgType
func IsClientMsgType(msgType string) bool {
	return msgType == constant.MsgTypeText || msgType == constant.MsgTypeImage
}
