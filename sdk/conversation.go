package sdk

import (
	"context"
)

type conversationAction struct {
	ConversationId string `json:"conversation_id"`
	Reason         string `json:"reason,omitempty"`
}

// CreateConversation opens a conversation with a peer, or returns the existing one
func (c *Client) CreateConversation(ctx context.Context, req *CreateConversationRequest) (*CreateConversationResponse, error) {
	var result CreateConversationResponse
	if err := c.post(ctx, "/conversation/create", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConversationList gets all conversations for the current user, latest activity first
func (c *Client) GetConversationList(ctx context.Context) ([]*ConversationInfo, error) {
	var result []*ConversationInfo
	if err := c.get(ctx, "/conversation/list", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetConversation gets a specific conversation
func (c *Client) GetConversation(ctx context.Context, conversationId string) (*ConversationInfo, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result ConversationInfo
	if err := c.get(ctx, "/conversation/info", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AcceptConversation accepts a pending request
func (c *Client) AcceptConversation(ctx context.Context, conversationId string) (*Conversation, error) {
	return c.transition(ctx, "/conversation/accept", &conversationAction{ConversationId: conversationId})
}

// RejectConversation rejects a pending request
func (c *Client) RejectConversation(ctx context.Context, conversationId, reason string) (*Conversation, error) {
	return c.transition(ctx, "/conversation/reject", &conversationAction{ConversationId: conversationId, Reason: reason})
}

// CompleteConversation closes an active conversation
func (c *Client) CompleteConversation(ctx context.Context, conversationId string) (*Conversation, error) {
	return c.transition(ctx, "/conversation/complete", &conversationAction{ConversationId: conversationId})
}

// CancelConversation withdraws a pending or active conversation
func (c *Client) CancelConversation(ctx context.Context, conversationId string) (*Conversation, error) {
	return c.transition(ctx, "/conversation/cancel", &conversationAction{ConversationId: conversationId})
}

func (c *Client) transition(ctx context.Context, path string, req *conversationAction) (*Conversation, error) {
	var result Conversation
	if err := c.post(ctx, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteConversation deletes a conversation and its messages
func (c *Client) DeleteConversation(ctx context.Context, conversationId string) error {
	return c.post(ctx, "/conversation/delete", &conversationAction{ConversationId: conversationId}, nil)
}

// GetUnreadSummary gets unread counts of every conversation
func (c *Client) GetUnreadSummary(ctx context.Context) (*UnreadSummary, error) {
	var result UnreadSummary
	if err := c.get(ctx, "/conversation/unread_summary", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUnreadCount gets the unread count of one conversation
func (c *Client) GetUnreadCount(ctx context.Context, conversationId string) (int64, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result struct {
		UnreadCount int64 `json:"unread_count"`
	}
	if err := c.get(ctx, "/conversation/unread_count", params, &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

// GetPeerOnline reports whether the other participant is connected
func (c *Client) GetPeerOnline(ctx context.Context, conversationId string) (*PeerPresence, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result PeerPresence
	if err := c.get(ctx, "/conversation/peer_online", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
