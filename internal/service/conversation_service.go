package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/internal/repository"
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/mbeoliero/trato/pkg/errcode"
	"github.com/mbeoliero/trato/pkg/idgen"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AcceptedSystemText is the content of the system message appended on accept
const AcceptedSystemText = "The provider accepted this conversation. You can start chatting now."

// ConversationService owns the conversation lifecycle
type ConversationService struct {
	core
	bookings BookingDirectory
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories) *ConversationService {
	return &ConversationService{core: newCore(repos)}
}

// SetBookingDirectory sets the booking lookup used to prefill new conversations
func (s *ConversationService) SetBookingDirectory(bookings BookingDirectory) {
	s.bookings = bookings
}

// CreateConversationRequest represents create conversation request
type CreateConversationRequest struct {
	PeerId    string `json:"peer_id"`
	BookingId string `json:"booking_id,omitempty"`
}

// Create opens a conversation between the actor and peer, or returns the one
// that already exists for the same (customer, provider, booking) triple.
// created is false when an existing conversation is returned.
func (s *ConversationService) Create(ctx context.Context, actor Actor, req *CreateConversationRequest) (*entity.Conversation, bool, error) {
	guard := entity.CanCreate(entity.CreateContext{ActorId: actor.UserId, ActorRole: actor.Role, PeerId: req.PeerId})
	if !guard.Allowed {
		return nil, false, guard.Err
	}

	customerId, providerId := actor.UserId, req.PeerId
	if actor.Role == constant.RoleProvider {
		customerId, providerId = req.PeerId, actor.UserId
	}

	existing, err := s.convRepo.GetByTriple(ctx, customerId, providerId, req.BookingId)
	if err != nil {
		return nil, false, storageErr(ctx, "get conversation by triple", err)
	}
	if existing != nil {
		log.CtxDebug(ctx, "conversation exists: conversation_id=%s, status=%s", existing.Id, existing.Status)
		return existing, false, nil
	}

	id, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate conversation id failed: %v", err)
		return nil, false, errcode.ErrInternalServer
	}

	conv := &entity.Conversation{
		Id:          id,
		CustomerId:  customerId,
		ProviderId:  providerId,
		BookingId:   req.BookingId,
		InitiatorId: actor.UserId,
		Status:      entity.InitialStatus(actor.Role),
	}
	conv.BookingContext = datatypes.NewJSONType(s.lookupBooking(ctx, req.BookingId))

	// a concurrent create of the same triple resolves to the stored row here
	got, created, err := s.convRepo.CreateOrGet(ctx, conv)
	if err != nil {
		return nil, false, storageErr(ctx, "create conversation", err)
	}

	if created {
		log.CtxInfo(ctx, "conversation created: conversation_id=%s, customer_id=%s, provider_id=%s, booking_id=%s, status=%s",
			got.Id, got.CustomerId, got.ProviderId, got.BookingId, got.Status)
		s.push(ctx, entity.NewStatusChanged(got, actor.UserId), got.Participants())
	} else {
		log.CtxDebug(ctx, "conversation exists: conversation_id=%s, status=%s", got.Id, got.Status)
	}
	return got, created, nil
}

// lookupBooking returns booking display context, empty when unavailable
func (s *ConversationService) lookupBooking(ctx context.Context, bookingId string) entity.BookingContext {
	if s.bookings == nil || bookingId == "" {
		return entity.BookingContext{}
	}
	bc, err := s.bookings.LookupBooking(ctx, bookingId)
	if err != nil || bc == nil {
		log.CtxWarn(ctx, "booking lookup failed: booking_id=%s, error=%v", bookingId, err)
		return entity.BookingContext{}
	}
	return *bc
}

// Accept moves a pending conversation to active and appends a system message
func (s *ConversationService) Accept(ctx context.Context, actorId, conversationId string) (*entity.Conversation, error) {
	var sysMsg *entity.Message
	conv, err := s.transition(ctx, actorId, conversationId, entity.EventAccept, nil, func(tx *gorm.DB, conv *entity.Conversation) error {
		sysMsg = &entity.Message{
			ConversationId: conv.Id,
			SenderId:       actorId,
			MsgType:        constant.MsgTypeSystem,
			Content:        AcceptedSystemText,
		}
		_, err := s.msgRepo.Create(ctx, tx, sysMsg)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.push(ctx, entity.NewMessageDelivered(sysMsg), conv.Participants())
	s.pushUnread(ctx, conv.CustomerId, conv.Id)
	return conv, nil
}

// Reject moves a pending conversation to rejected
func (s *ConversationService) Reject(ctx context.Context, actorId, conversationId, reason string) (*entity.Conversation, error) {
	var extra map[string]interface{}
	if reason != "" {
		extra = map[string]interface{}{"reject_reason": truncate(reason, 255)}
	}
	return s.transition(ctx, actorId, conversationId, entity.EventReject, extra, nil)
}

// Complete moves an active conversation to completed
func (s *ConversationService) Complete(ctx context.Context, actorId, conversationId string) (*entity.Conversation, error) {
	return s.transition(ctx, actorId, conversationId, entity.EventComplete, nil, nil)
}

// Cancel moves a pending or active conversation to cancelled
func (s *ConversationService) Cancel(ctx context.Context, actorId, conversationId string) (*entity.Conversation, error) {
	return s.transition(ctx, actorId, conversationId, entity.EventCancel, nil, nil)
}

// transition guards and applies event with a compare-and-swap on status.
// inTx runs in the same transaction after the status changed.
func (s *ConversationService) transition(ctx context.Context, actorId, conversationId string, event entity.Event,
	extra map[string]interface{}, inTx func(tx *gorm.DB, conv *entity.Conversation) error) (*entity.Conversation, error) {
	conv, err := s.load(ctx, conversationId)
	if err != nil {
		return nil, err
	}

	guard := entity.CanTransition(entity.TransitionContext{Conversation: conv, ActorId: actorId, Event: event})
	if !guard.Allowed {
		return nil, guard.Err
	}

	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		n, err := s.convRepo.Transition(ctx, tx, conversationId, event, extra)
		if err != nil {
			return err
		}
		if n == 0 {
			current, err := s.convRepo.GetById(ctx, tx, conversationId)
			if err != nil {
				return err
			}
			if current == nil {
				return errcode.ErrConversationNotFound
			}
			return entity.RejectedTransition(event, current.Status)
		}
		if inTx != nil {
			return inTx(tx, conv)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(ctx, "conversation "+string(event), err)
	}

	conv, err = s.load(ctx, conversationId)
	if err != nil {
		return nil, err
	}

	log.CtxInfo(ctx, "conversation transitioned: conversation_id=%s, event=%s, actor_id=%s, status=%s",
		conv.Id, event, actorId, conv.Status)

	s.push(ctx, entity.NewStatusChanged(conv, actorId), conv.Participants())
	s.notify(ctx, &entity.NotificationEvent{
		EventType:      entity.Transitions[event].Notify,
		ConversationId: conv.Id,
		ActorId:        actorId,
		RecipientId:    conv.PeerOf(actorId),
		SummaryText:    transitionSummary(event, conv),
	})
	return conv, nil
}

func transitionSummary(event entity.Event, conv *entity.Conversation) string {
	switch event {
	case entity.EventAccept:
		return "Your conversation request was accepted"
	case entity.EventReject:
		if conv.RejectReason != "" {
			return "Your conversation request was declined: " + conv.RejectReason
		}
		return "Your conversation request was declined"
	case entity.EventComplete:
		return "The conversation was marked as completed"
	default:
		return "The conversation was cancelled"
	}
}

// Get returns the conversation as seen by a participant
func (s *ConversationService) Get(ctx context.Context, userId, conversationId string) (*entity.ConversationInfo, error) {
	conv, err := s.loadForParticipant(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}

	unread, err := s.convRepo.UnreadCount(ctx, userId, conversationId)
	if err != nil {
		return nil, storageErr(ctx, "count unread", err)
	}
	last, err := s.msgRepo.GetLatest(ctx, conversationId)
	if err != nil {
		return nil, storageErr(ctx, "get latest message", err)
	}

	info := &entity.ConversationInfo{Conversation: conv, PeerId: conv.PeerOf(userId), UnreadCount: unread, LastMessage: last}
	if last != nil {
		info.LastMessageAt = &last.CreatedAt
	}
	return info, nil
}

// List returns every conversation of userId ordered like the unread summary:
// latest message first, conversations without messages last
func (s *ConversationService) List(ctx context.Context, userId string) ([]*entity.ConversationInfo, error) {
	convs, err := s.convRepo.ListByUser(ctx, userId)
	if err != nil {
		return nil, storageErr(ctx, "list conversations", err)
	}
	entries, err := s.convRepo.UnreadSummary(ctx, userId)
	if err != nil {
		return nil, storageErr(ctx, "unread summary", err)
	}

	byId := make(map[string]*entity.Conversation, len(convs))
	for _, c := range convs {
		byId[c.Id] = c
	}

	result := make([]*entity.ConversationInfo, 0, len(entries))
	for _, e := range entries {
		conv, ok := byId[e.ConversationId]
		if !ok {
			// created between the two reads
			continue
		}
		result = append(result, &entity.ConversationInfo{
			Conversation:  conv,
			PeerId:        conv.PeerOf(userId),
			UnreadCount:   e.UnreadCount,
			LastMessageAt: e.LastMessageAt,
		})
	}
	return result, nil
}

// Delete removes a conversation and its messages. This is irreversible and
// separate from the status lifecycle.
func (s *ConversationService) Delete(ctx context.Context, userId, conversationId string) error {
	conv, err := s.loadForParticipant(ctx, userId, conversationId)
	if err != nil {
		return err
	}

	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		_, err := s.convRepo.Delete(ctx, tx, conversationId)
		return err
	})
	if err != nil {
		return storageErr(ctx, "delete conversation", err)
	}

	log.CtxInfo(ctx, "conversation deleted: conversation_id=%s, user_id=%s", conversationId, userId)
	s.push(ctx, &entity.PushEvent{
		Type:           entity.PushConversationStatusChanged,
		ConversationId: conv.Id,
		Data:           &entity.StatusChangedData{ConversationId: conv.Id, Status: entity.StatusDeleted, ActorId: userId},
	}, conv.Participants())
	return nil
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes])
}
