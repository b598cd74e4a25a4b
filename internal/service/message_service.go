package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/internal/repository"
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/mbeoliero/trato/pkg/errcode"
	"gorm.io/gorm"
)

// notifySummaryRunes bounds the message preview handed to notifications
const notifySummaryRunes = 120

// MessageService handles message-related business logic
type MessageService struct {
	core
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories) *MessageService {
	return &MessageService{core: newCore(repos)}
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id"`
	MsgType        string `json:"message_type"`
	Content        string `json:"content"`
}

// Send appends a client message. A retry carrying an already stored
// client_msg_id returns the stored message without appending again.
func (s *MessageService) Send(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.Message, error) {
	if req.MsgType == "" {
		req.MsgType = constant.MsgTypeText
	}
	if !entity.IsClientMsgType(req.MsgType) {
		return nil, errcode.ErrInvalidMessageType
	}
	content, err := entity.NormalizeContent(req.Content)
	if err != nil {
		return nil, err
	}

	if req.ClientMsgId != "" {
		existing, err := s.msgRepo.GetByClientMsgId(ctx, nil, senderId, req.ClientMsgId)
		if err != nil {
			return nil, storageErr(ctx, "check idempotency", err)
		}
		if existing != nil {
			if existing.ConversationId != req.ConversationId {
				return nil, errcode.ErrInvalidParam
			}
			log.CtxDebug(ctx, "duplicate message: client_msg_id=%s", req.ClientMsgId)
			conv, err := s.convRepo.GetById(ctx, nil, existing.ConversationId)
			if err == nil && conv != nil {
				s.push(ctx, entity.NewMessageDelivered(existing), conv.Participants())
			}
			return existing, nil
		}
	}

	conv, err := s.load(ctx, req.ConversationId)
	if err != nil {
		return nil, err
	}

	guard := entity.CanSend(entity.SendContext{Conversation: conv, SenderId: senderId, MsgType: req.MsgType})
	if !guard.Allowed {
		return nil, guard.Err
	}

	msg := &entity.Message{
		ConversationId: conv.Id,
		SenderId:       senderId,
		MsgType:        req.MsgType,
		Content:        content,
	}
	if req.ClientMsgId != "" {
		token := req.ClientMsgId
		msg.ClientMsgId = &token
	}

	msg, err = s.Append(ctx, msg)
	if err != nil {
		return nil, err
	}

	log.CtxInfo(ctx, "message sent: conversation_id=%s, sender_id=%s, msg_id=%d", msg.ConversationId, senderId, msg.Id)

	recipientId := conv.PeerOf(senderId)
	s.push(ctx, entity.NewMessageDelivered(msg), conv.Participants())
	s.pushUnread(ctx, recipientId, conv.Id)
	s.notify(ctx, &entity.NotificationEvent{
		EventType:      entity.NotifyNewMessage,
		ConversationId: conv.Id,
		ActorId:        senderId,
		RecipientId:    recipientId,
		SummaryText:    msg.Summary(notifySummaryRunes),
	})
	return msg, nil
}

// Append persists msg and bumps the conversation's updated_at in one
// transaction. The status gate is re-checked under the row update so a send
// racing a completion cannot land after it. When msg carries a client_msg_id
// that was stored concurrently, the stored message is returned.
func (s *MessageService) Append(ctx context.Context, msg *entity.Message) (*entity.Message, error) {
	result := msg
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		n, err := s.convRepo.Touch(ctx, tx, msg.ConversationId, entity.SendableStatuses(msg.MsgType))
		if err != nil {
			return err
		}
		if n == 0 {
			current, err := s.convRepo.GetById(ctx, tx, msg.ConversationId)
			if err != nil {
				return err
			}
			if current == nil {
				return errcode.ErrConversationNotFound
			}
			if gateErr := entity.SendGate(current.Status); gateErr != nil {
				return gateErr
			}
			return errcode.ErrConversationAlreadyProcessed
		}

		inserted, err := s.msgRepo.Create(ctx, tx, msg)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.msgRepo.GetByClientMsgId(ctx, tx, msg.SenderId, msg.CorrelationToken())
			if err != nil {
				return err
			}
			if existing == nil {
				return errcode.ErrInternalServer
			}
			result = existing
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(ctx, "append message", err)
	}
	return result, nil
}

// MessagePage is one page of a conversation log
type MessagePage struct {
	Messages   []*entity.Message `json:"messages"`
	NextCursor string            `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

// ListPage returns messages oldest first after cursor. NextCursor always
// resumes after the last message seen, so a caught-up client can keep polling
// with it. HasMore reports whether newer messages were already waiting.
func (s *MessageService) ListPage(ctx context.Context, userId, conversationId, cursor string, limit int) (*MessagePage, error) {
	after, err := entity.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadForParticipant(ctx, userId, conversationId); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = constant.DefaultPageSize
	}
	if limit > constant.MaxPageSize {
		limit = constant.MaxPageSize
	}

	msgs, hasMore, err := s.msgRepo.ListPage(ctx, conversationId, after, limit)
	if err != nil {
		return nil, storageErr(ctx, "list messages", err)
	}

	page := &MessagePage{Messages: msgs, NextCursor: cursor, HasMore: hasMore}
	if page.Messages == nil {
		page.Messages = []*entity.Message{}
	}
	if n := len(page.Messages); n > 0 {
		page.NextCursor = entity.CursorAfter(page.Messages[n-1]).Encode()
	}
	return page, nil
}

// MarkRead marks the peer's messages as read for readerId and returns how many changed
func (s *MessageService) MarkRead(ctx context.Context, readerId, conversationId string) (int64, error) {
	conv, err := s.loadForParticipant(ctx, readerId, conversationId)
	if err != nil {
		return 0, err
	}

	n, err := s.msgRepo.MarkReadByRecipient(ctx, conversationId, readerId)
	if err != nil {
		return 0, storageErr(ctx, "mark read", err)
	}

	if n > 0 {
		log.CtxDebug(ctx, "messages marked read: conversation_id=%s, reader_id=%s, count=%d", conversationId, readerId, n)
		s.pushUnread(ctx, readerId, conversationId)
		s.push(ctx, entity.NewMessageStatus(conversationId, 0, entity.MessageStatusRead, readerId), []string{conv.PeerOf(readerId)})
	}
	return n, nil
}
