package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/internal/middleware"
	"github.com/mbeoliero/trato/internal/service"
	"github.com/mbeoliero/trato/pkg/errcode"
	"github.com/mbeoliero/trato/pkg/response"
)

// PresenceChecker answers whether a user has a live realtime connection
type PresenceChecker interface {
	IsOnline(ctx context.Context, userId string) bool
}

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	convService   *service.ConversationService
	unreadService *service.UnreadService
	presence      PresenceChecker
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService, unreadService *service.UnreadService, presence PresenceChecker) *ConversationHandler {
	return &ConversationHandler{convService: convService, unreadService: unreadService, presence: presence}
}

// ConversationActionRequest addresses one conversation, with an optional reason for reject
type ConversationActionRequest struct {
	ConversationId string `json:"conversation_id"`
	Reason         string `json:"reason,omitempty"`
}

// CreateConversationResponse is the result of create
type CreateConversationResponse struct {
	Conversation *entity.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
}

// CreateConversation handles create conversation request
func (h *ConversationHandler) CreateConversation(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.CreateConversationRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	actor := service.Actor{UserId: userId, Role: middleware.GetRole(c)}
	conv, created, err := h.convService.Create(ctx, actor, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &CreateConversationResponse{Conversation: conv, Created: created})
}

// GetConversationList handles get conversation list request
func (h *ConversationHandler) GetConversationList(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	convs, err := h.convService.List(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, convs)
}

// GetConversation handles get single conversation request
func (h *ConversationHandler) GetConversation(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.convService.Get(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// AcceptConversation handles accept request
func (h *ConversationHandler) AcceptConversation(ctx context.Context, c *app.RequestContext) {
	h.transition(ctx, c, func(userId string, req *ConversationActionRequest) (*entity.Conversation, error) {
		return h.convService.Accept(ctx, userId, req.ConversationId)
	})
}

// RejectConversation handles reject request
func (h *ConversationHandler) RejectConversation(ctx context.Context, c *app.RequestContext) {
	h.transition(ctx, c, func(userId string, req *ConversationActionRequest) (*entity.Conversation, error) {
		return h.convService.Reject(ctx, userId, req.ConversationId, req.Reason)
	})
}

// CompleteConversation handles complete request
func (h *ConversationHandler) CompleteConversation(ctx context.Context, c *app.RequestContext) {
	h.transition(ctx, c, func(userId string, req *ConversationActionRequest) (*entity.Conversation, error) {
		return h.convService.Complete(ctx, userId, req.ConversationId)
	})
}

// CancelConversation handles cancel request
func (h *ConversationHandler) CancelConversation(ctx context.Context, c *app.RequestContext) {
	h.transition(ctx, c, func(userId string, req *ConversationActionRequest) (*entity.Conversation, error) {
		return h.convService.Cancel(ctx, userId, req.ConversationId)
	})
}

func (h *ConversationHandler) transition(ctx context.Context, c *app.RequestContext,
	apply func(userId string, req *ConversationActionRequest) (*entity.Conversation, error)) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req ConversationActionRequest
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := apply(userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// DeleteConversation handles delete request
func (h *ConversationHandler) DeleteConversation(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req ConversationActionRequest
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.convService.Delete(ctx, userId, req.ConversationId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// GetUnreadSummary handles unread summary request
func (h *ConversationHandler) GetUnreadSummary(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	summary, err := h.unreadService.Summary(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, summary)
}

// GetUnreadCount handles get unread count request
func (h *ConversationHandler) GetUnreadCount(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	count, err := h.unreadService.Count(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"conversation_id": conversationId,
		"unread_count":    count,
	})
}

// GetPeerOnline reports whether the other participant has a live connection
func (h *ConversationHandler) GetPeerOnline(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	info, err := h.convService.Get(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	online := h.presence != nil && h.presence.IsOnline(ctx, info.PeerId)
	response.Success(ctx, c, map[string]interface{}{
		"peer_id": info.PeerId,
		"online":  online,
	})
}
