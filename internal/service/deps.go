package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/internal/repository"
	"github.com/mbeoliero/trato/pkg/errcode"
)

// EventPusher delivers events to every live connection of the target users
type EventPusher interface {
	AsyncPushToUsers(ctx context.Context, evt *entity.PushEvent, userIds []string)
}

// Notifier hands events to the notification collaborator without waiting for it
type Notifier interface {
	Dispatch(ctx context.Context, evt *entity.NotificationEvent)
}

// BookingDirectory resolves display context for a booking id
type BookingDirectory interface {
	LookupBooking(ctx context.Context, bookingId string) (*entity.BookingContext, error)
}

// Actor is the verified identity performing an operation
type Actor struct {
	UserId string
	Role   string
}

// storageErr passes business errors through and reports anything else as an
// unavailable storage layer
func storageErr(ctx context.Context, op string, err error) error {
	var e *errcode.Error
	if errors.As(err, &e) {
		return e
	}
	log.CtxError(ctx, "%s failed: %v", op, err)
	return errcode.ErrServiceUnavailable
}

// core holds the storage and side-effect wiring shared by the services
type core struct {
	msgRepo  *repository.MessageRepo
	convRepo *repository.ConversationRepo
	repos    *repository.Repositories
	pusher   EventPusher
	notifier Notifier
}

func newCore(repos *repository.Repositories) core {
	return core{
		msgRepo:  repos.Message,
		convRepo: repos.Conversation,
		repos:    repos,
	}
}

// SetPusher sets the realtime event pusher
func (s *core) SetPusher(pusher EventPusher) {
	s.pusher = pusher
}

// SetNotifier sets the notification dispatcher
func (s *core) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// load gets a conversation or ErrConversationNotFound
func (s *core) load(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	if conversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	conv, err := s.convRepo.GetById(ctx, nil, conversationId)
	if err != nil {
		return nil, storageErr(ctx, "get conversation", err)
	}
	if conv == nil {
		return nil, errcode.ErrConversationNotFound
	}
	return conv, nil
}

// loadForParticipant gets a conversation userId takes part in
func (s *core) loadForParticipant(ctx context.Context, userId, conversationId string) (*entity.Conversation, error) {
	conv, err := s.load(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userId) {
		return nil, errcode.ErrNotAParticipant
	}
	return conv, nil
}

func (s *core) push(ctx context.Context, evt *entity.PushEvent, userIds []string) {
	if s.pusher != nil {
		s.pusher.AsyncPushToUsers(ctx, evt, userIds)
	}
}

// pushUnread sends userId the fresh unread count of one conversation
func (s *core) pushUnread(ctx context.Context, userId, conversationId string) {
	if s.pusher == nil {
		return
	}
	count, err := s.convRepo.UnreadCount(ctx, userId, conversationId)
	if err != nil {
		log.CtxWarn(ctx, "count unread for push failed: user_id=%s, conversation_id=%s, error=%v", userId, conversationId, err)
		return
	}
	s.pusher.AsyncPushToUsers(ctx, entity.NewUnreadChanged(conversationId, count), []string{userId})
}

func (s *core) notify(ctx context.Context, evt *entity.NotificationEvent) {
	if s.notifier == nil {
		return
	}
	if evt.OccurredAt == 0 {
		evt.OccurredAt = entity.NowUnixMilli()
	}
	s.notifier.Dispatch(ctx, evt)
}
