package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/trato/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGet inserts conv unless a conversation already exists for its
// (customer, provider, booking) triple, in which case the stored one is returned.
// created reports whether conv was inserted.
func (r *ConversationRepo) CreateOrGet(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	now := entity.NowUnixMilli()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(conv)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return conv, true, nil
	}

	existing, err := r.GetByTriple(ctx, conv.CustomerId, conv.ProviderId, conv.BookingId)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("conversation conflict without existing row")
	}
	return existing, false, nil
}

// GetByTriple gets the conversation of a (customer, provider, booking) triple
func (r *ConversationRepo) GetByTriple(ctx context.Context, customerId, providerId, bookingId string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND provider_id = ? AND booking_id = ?", customerId, providerId, bookingId).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetById gets a conversation, returning nil when it does not exist
func (r *ConversationRepo) GetById(ctx context.Context, tx *gorm.DB, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := conn(ctx, r.db, tx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListByUser gets all conversations where userId is a participant, most recently updated first
func (r *ConversationRepo) ListByUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Where("customer_id = ? OR provider_id = ?", userId, userId).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// Transition applies event with a compare-and-swap on status. It only writes
// when the stored status is a source of the edge and returns the number of
// rows changed; 0 means the conversation is missing or its status moved on.
// extra holds additional columns written with the new status.
func (r *ConversationRepo) Transition(ctx context.Context, tx *gorm.DB, id string, event entity.Event, extra map[string]interface{}) (int64, error) {
	t, ok := entity.Transitions[event]
	if !ok {
		return 0, errors.New("unknown conversation event: " + string(event))
	}

	updates := map[string]interface{}{
		"status":     t.To,
		"updated_at": entity.NowUnixMilli(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := conn(ctx, r.db, tx).
		Model(&entity.Conversation{}).
		Where("id = ? AND status IN ?", id, t.From).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// Touch bumps updated_at when the conversation is in one of statuses.
// Inside an append transaction this also locks the row, serializing appends per conversation.
func (r *ConversationRepo) Touch(ctx context.Context, tx *gorm.DB, id string, statuses []string) (int64, error) {
	res := conn(ctx, r.db, tx).
		Model(&entity.Conversation{}).
		Where("id = ? AND status IN ?", id, statuses).
		UpdateColumn("updated_at", entity.NowUnixMilli())
	return res.RowsAffected, res.Error
}

// Delete removes the conversation and all of its messages
func (r *ConversationRepo) Delete(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	db := conn(ctx, r.db, tx)
	if err := db.Where("conversation_id = ?", id).Delete(&entity.Message{}).Error; err != nil {
		return 0, err
	}
	res := db.Where("id = ?", id).Delete(&entity.Conversation{})
	return res.RowsAffected, res.Error
}

const unreadSummarySQL = `
SELECT c.id AS conversation_id,
	COALESCE(SUM(CASE WHEN m.sender_id <> ? AND m.is_read = ? THEN 1 ELSE 0 END), 0) AS unread_count,
	MAX(m.created_at) AS last_message_at
FROM conversations c
LEFT JOIN messages m ON m.conversation_id = c.id
WHERE c.customer_id = ? OR c.provider_id = ?
GROUP BY c.id
ORDER BY CASE WHEN MAX(m.created_at) IS NULL THEN 1 ELSE 0 END, MAX(m.created_at) DESC, c.id DESC`

// UnreadSummary computes unread counts and last message time for every
// conversation of userId in one query, newest activity first and empty
// conversations last.
func (r *ConversationRepo) UnreadSummary(ctx context.Context, userId string) ([]*entity.UnreadEntry, error) {
	var entries []*entity.UnreadEntry
	err := r.db.WithContext(ctx).
		Raw(unreadSummarySQL, userId, false, userId, userId).
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// UnreadCount counts messages in one conversation that userId has not read
func (r *ConversationRepo) UnreadCount(ctx context.Context, userId, conversationId string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationId, userId, false).
		Count(&count).Error
	return count, err
}
