package entity

// UnreadEntry is the unread state of one conversation for one user
type UnreadEntry struct {
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id"`
	UnreadCount    int64  `json:"unread_count" gorm:"column:unread_count"`
	LastMessageAt  *int64 `json:"last_message_at" gorm:"column:last_message_at"`
}

// UnreadSummary is the per-conversation breakdown plus the badge total
type UnreadSummary struct {
	Total         int64          `json:"total"`
	Conversations []*UnreadEntry `json:"conversations"`
}

// NewUnreadSummary sums entries into a summary
func NewUnreadSummary(entries []*UnreadEntry) *UnreadSummary {
	s := &UnreadSummary{Conversations: entries}
	if s.Conversations == nil {
		s.Conversations = []*UnreadEntry{}
	}
	for _, e := range entries {
		s.Total += e.UnreadCount
	}
	return s
}
