package entity

import (
	"strings"
	"testing"

	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/mbeoliero/trato/pkg/errcode"
	"github.com/stretchr/testify/assert"
)

const (
	customerId = "7"
	providerId = "9"
	strangerId = "11"
)

func convWithStatus(status string) *Conversation {
	return &Conversation{Id: "c1", CustomerId: customerId, ProviderId: providerId, Status: status}
}

var allStatuses = []string{
	constant.ConvStatusPending,
	constant.ConvStatusActive,
	constant.ConvStatusRejected,
	constant.ConvStatusCompleted,
	constant.ConvStatusCancelled,
}

func TestCanCreate(t *testing.T) {
	tests := []struct {
		name    string
		ctx     CreateContext
		wantErr *errcode.Error
	}{
		{
			name: "customer opens conversation with provider",
			ctx:  CreateContext{ActorId: customerId, ActorRole: constant.RoleCustomer, PeerId: providerId},
		},
		{
			name: "provider opens conversation with customer",
			ctx:  CreateContext{ActorId: providerId, ActorRole: constant.RoleProvider, PeerId: customerId},
		},
		{
			name:    "self conversation is rejected",
			ctx:     CreateContext{ActorId: customerId, ActorRole: constant.RoleCustomer, PeerId: customerId},
			wantErr: errcode.ErrSelfConversationNotAllowed,
		},
		{
			name:    "unknown role is rejected",
			ctx:     CreateContext{ActorId: customerId, ActorRole: "admin", PeerId: providerId},
			wantErr: errcode.ErrRoleNotAllowed,
		},
		{
			name:    "missing peer is rejected",
			ctx:     CreateContext{ActorId: customerId, ActorRole: constant.RoleCustomer},
			wantErr: errcode.ErrInvalidParam,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanCreate(tt.ctx)
			assert.Equal(t, tt.wantErr == nil, result.Allowed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, result.Error(), tt.wantErr)
			} else {
				assert.NoError(t, result.Error())
			}
		})
	}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, constant.ConvStatusPending, InitialStatus(constant.RoleCustomer))
	assert.Equal(t, constant.ConvStatusActive, InitialStatus(constant.RoleProvider))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		actor   string
		event   Event
		wantErr *errcode.Error
	}{
		{name: "provider accepts pending", status: constant.ConvStatusPending, actor: providerId, event: EventAccept},
		{name: "provider rejects pending", status: constant.ConvStatusPending, actor: providerId, event: EventReject},
		{name: "provider completes active", status: constant.ConvStatusActive, actor: providerId, event: EventComplete},
		{name: "customer cancels pending", status: constant.ConvStatusPending, actor: customerId, event: EventCancel},
		{name: "provider cancels active", status: constant.ConvStatusActive, actor: providerId, event: EventCancel},
		{
			name: "customer cannot accept", status: constant.ConvStatusPending, actor: customerId, event: EventAccept,
			wantErr: errcode.ErrRoleNotAllowed,
		},
		{
			name: "customer cannot complete", status: constant.ConvStatusActive, actor: customerId, event: EventComplete,
			wantErr: errcode.ErrRoleNotAllowed,
		},
		{
			name: "stranger cannot cancel", status: constant.ConvStatusActive, actor: strangerId, event: EventCancel,
			wantErr: errcode.ErrNotAParticipant,
		},
		{
			name: "accept after accept", status: constant.ConvStatusActive, actor: providerId, event: EventAccept,
			wantErr: errcode.ErrConversationAlreadyProcessed,
		},
		{
			name: "reject after accept", status: constant.ConvStatusActive, actor: providerId, event: EventReject,
			wantErr: errcode.ErrConversationAlreadyProcessed,
		},
		{
			name: "complete while pending", status: constant.ConvStatusPending, actor: providerId, event: EventComplete,
			wantErr: errcode.ErrConversationNotActive,
		},
		{
			name: "cancel completed", status: constant.ConvStatusCompleted, actor: customerId, event: EventCancel,
			wantErr: errcode.ErrConversationAlreadyProcessed,
		},
		{
			name: "unknown event", status: constant.ConvStatusPending, actor: providerId, event: Event("archive"),
			wantErr: errcode.ErrInvalidParam,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanTransition(TransitionContext{
				Conversation: convWithStatus(tt.status),
				ActorId:      tt.actor,
				Event:        tt.event,
			})
			assert.Equal(t, tt.wantErr == nil, result.Allowed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, result.Error(), tt.wantErr)
			}
		})
	}
}

// Every allowed (status, event) pair must be an edge of the table and
// terminal states must have no outgoing edges.
func TestTransitionsAreClosed(t *testing.T) {
	for event, tr := range Transitions {
		for _, status := range allStatuses {
			result := CanTransition(TransitionContext{
				Conversation: convWithStatus(status),
				ActorId:      providerId,
				Event:        event,
			})
			assert.Equal(t, tr.Allows(status), result.Allowed, "event=%s status=%s", event, status)
			if IsTerminalStatus(status) {
				assert.False(t, result.Allowed, "terminal status %s left by %s", status, event)
			}
		}
		assert.Contains(t, allStatuses, tr.To)
		assert.NotEmpty(t, tr.Notify)
	}
}

func TestCanSend(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		sender  string
		msgType string
		wantErr *errcode.Error
	}{
		{name: "customer sends in active", status: constant.ConvStatusActive, sender: customerId, msgType: constant.MsgTypeText},
		{name: "provider sends image in active", status: constant.ConvStatusActive, sender: providerId, msgType: constant.MsgTypeImage},
		{
			name: "pending rejects", status: constant.ConvStatusPending, sender: providerId, msgType: constant.MsgTypeText,
			wantErr: errcode.ErrConversationNotActive,
		},
		{
			name: "completed is closed", status: constant.ConvStatusCompleted, sender: customerId, msgType: constant.MsgTypeText,
			wantErr: errcode.ErrConversationClosed,
		},
		{
			name: "rejected is closed", status: constant.ConvStatusRejected, sender: customerId, msgType: constant.MsgTypeText,
			wantErr: errcode.ErrConversationClosed,
		},
		{
			name: "cancelled is closed", status: constant.ConvStatusCancelled, sender: providerId, msgType: constant.MsgTypeText,
			wantErr: errcode.ErrConversationClosed,
		},
		{name: "system bypasses pending", status: constant.ConvStatusPending, sender: providerId, msgType: constant.MsgTypeSystem},
		{
			name: "stranger cannot send", status: constant.ConvStatusActive, sender: strangerId, msgType: constant.MsgTypeText,
			wantErr: errcode.ErrNotAParticipant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanSend(SendContext{Conversation: convWithStatus(tt.status), SenderId: tt.sender, MsgType: tt.msgType})
			assert.Equal(t, tt.wantErr == nil, result.Allowed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, result.Error(), tt.wantErr)
			}
		})
	}
}

func TestSendableStatusesMatchGate(t *testing.T) {
	for _, status := range allStatuses {
		sendable := SendableStatuses(constant.MsgTypeText)
		assert.Equal(t, SendGate(status) == nil, contains(sendable, status), status)
		assert.Contains(t, SendableStatuses(constant.MsgTypeSystem), status)
	}
}

func TestNormalizeContent(t *testing.T) {
	got, err := NormalizeContent("  Hola, necesito ayuda \n")
	assert.NoError(t, err)
	assert.Equal(t, "Hola, necesito ayuda", got)

	_, err = NormalizeContent("   ")
	assert.ErrorIs(t, err, errcode.ErrInvalidContent)

	_, err = NormalizeContent(strings.Repeat("ñ", constant.MaxContentLength))
	assert.NoError(t, err)

	_, err = NormalizeContent(strings.Repeat("a", constant.MaxContentLength+1))
	assert.ErrorIs(t, err, errcode.ErrInvalidContent)
}

func TestConversationParticipants(t *testing.T) {
	conv := convWithStatus(constant.ConvStatusActive)
	assert.True(t, conv.IsParticipant(customerId))
	assert.False(t, conv.IsParticipant(strangerId))
	assert.False(t, conv.IsParticipant(""))
	assert.Equal(t, providerId, conv.PeerOf(customerId))
	assert.Equal(t, customerId, conv.PeerOf(providerId))
	assert.Empty(t, conv.PeerOf(strangerId))
}

func TestNewUnreadSummary(t *testing.T) {
	at := int64(10)
	s := NewUnreadSummary([]*UnreadEntry{
		{ConversationId: "a", UnreadCount: 2, LastMessageAt: &at},
		{ConversationId: "b", UnreadCount: 3},
	})
	assert.Equal(t, int64(5), s.Total)
	assert.Len(t, s.Conversations, 2)

	empty := NewUnreadSummary(nil)
	assert.NotNil(t, empty.Conversations)
	assert.Zero(t, empty.Total)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
