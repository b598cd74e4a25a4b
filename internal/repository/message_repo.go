package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/pkg/constant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create appends msg inside tx. A message whose (sender_id, client_msg_id)
// already exists is not inserted and inserted is false.
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) (bool, error) {
	msg.CreatedAt = entity.NowUnixMilli()
	res := conn(ctx, r.db, tx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetByClientMsgId gets message by sender_id and client_msg_id (for idempotency check)
func (r *MessageRepo) GetByClientMsgId(ctx context.Context, tx *gorm.DB, senderId, clientMsgId string) (*entity.Message, error) {
	var msg entity.Message
	err := conn(ctx, r.db, tx).
		Where("sender_id = ? AND client_msg_id = ?", senderId, clientMsgId).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListPage returns up to limit messages after cursor, oldest first, and
// whether more follow. limit is capped at constant.MaxPageSize.
func (r *MessageRepo) ListPage(ctx context.Context, conversationId string, after *entity.Cursor, limit int) ([]*entity.Message, bool, error) {
	if limit <= 0 {
		limit = constant.DefaultPageSize
	}
	if limit > constant.MaxPageSize {
		limit = constant.MaxPageSize
	}

	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId)
	if after != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.Id)
	}

	var messages []*entity.Message
	err := q.Order("created_at ASC").
		Order("id ASC").
		Limit(limit + 1).
		Find(&messages).Error
	if err != nil {
		return nil, false, err
	}
	if len(messages) > limit {
		return messages[:limit], true, nil
	}
	return messages, false, nil
}

// GetLatest gets the newest message of a conversation, nil when it has none
func (r *MessageRepo) GetLatest(ctx context.Context, conversationId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("created_at DESC").
		Order("id DESC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// MarkReadByRecipient marks every message not sent by readerId as read and
// returns how many rows changed. Repeated calls return 0.
func (r *MessageRepo) MarkReadByRecipient(ctx context.Context, conversationId, readerId string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationId, readerId, false).
		UpdateColumn("is_read", true)
	return res.RowsAffected, res.Error
}
