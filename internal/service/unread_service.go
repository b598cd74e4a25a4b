package service

import (
	"context"

	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/internal/repository"
)

// UnreadService computes unread state on demand from the message log
type UnreadService struct {
	core
}

// NewUnreadService creates a new UnreadService
func NewUnreadService(repos *repository.Repositories) *UnreadService {
	return &UnreadService{core: newCore(repos)}
}

// Summary returns the unread breakdown of every conversation of userId,
// most recent activity first, plus the badge total
func (s *UnreadService) Summary(ctx context.Context, userId string) (*entity.UnreadSummary, error) {
	entries, err := s.convRepo.UnreadSummary(ctx, userId)
	if err != nil {
		return nil, storageErr(ctx, "unread summary", err)
	}
	return entity.NewUnreadSummary(entries), nil
}

// Count returns how many messages of the peer userId has not read in one conversation
func (s *UnreadService) Count(ctx context.Context, userId, conversationId string) (int64, error) {
	if _, err := s.loadForParticipant(ctx, userId, conversationId); err != nil {
		return 0, err
	}
	n, err := s.convRepo.UnreadCount(ctx, userId, conversationId)
	if err != nil {
		return 0, storageErr(ctx, "count unread", err)
	}
	return n, nil
}
