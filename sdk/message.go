package sdk

import (
	"context"
	"strconv"
)

// SendMessage sends a message over HTTP. Retrying with the same ClientMsgId
// returns the stored message instead of appending it again.
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*Message, error) {
	var result Message
	if err := c.post(ctx, "/msg/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendTextMessage is a convenience method to send a text message
func (c *Client) SendTextMessage(ctx context.Context, clientMsgId, conversationId, text string) (*Message, error) {
	return c.SendMessage(ctx, &SendMessageRequest{
		ConversationId: conversationId,
		ClientMsgId:    clientMsgId,
		MsgType:        MsgTypeText,
		Content:        text,
	})
}

// ListMessages gets one page of history after cursor; an empty cursor starts at the oldest message
func (c *Client) ListMessages(ctx context.Context, conversationId, cursor string, limit int) (*MessagePage, error) {
	params := map[string]string{
		"conversation_id": conversationId,
		"cursor":          cursor,
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var result MessagePage
	if err := c.get(ctx, "/msg/list", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead marks every message from the peer as read
func (c *Client) MarkRead(ctx context.Context, conversationId string) (int64, error) {
	req := &conversationAction{ConversationId: conversationId}
	var result struct {
		Updated int64 `json:"updated"`
	}
	if err := c.post(ctx, "/msg/mark_read", req, &result); err != nil {
		return 0, err
	}
	return result.Updated, nil
}
