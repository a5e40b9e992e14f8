// Copyright 2025 Foodie Chat Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/config"
	"github.com/your-org/foodie-chat/internal/fileproc"
	"github.com/your-org/foodie-chat/internal/jobs"
	"github.com/your-org/foodie-chat/internal/realtime"
	"github.com/your-org/foodie-chat/internal/resilience"
	"github.com/your-org/foodie-chat/internal/responder"
	"github.com/your-org/foodie-chat/internal/store"
)

// replyTimeout bounds one background reply generation end to end.
const replyTimeout = 2 * time.Minute

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	cfg          *config.Config
	store        *store.Store
	orchestrator *responder.Orchestrator
	queue        *jobs.Queue
	processor    *fileproc.Processor
	publisher    realtime.Publisher
	logger       *zap.Logger
}

// NewServer creates the HTTP server.
func NewServer(cfg *config.Config, chatStore *store.Store, orchestrator *responder.Orchestrator, queue *jobs.Queue, processor *fileproc.Processor, publisher realtime.Publisher, logger *zap.Logger) *Server {
	return &Server{
		cfg:          cfg,
		store:        chatStore,
		orchestrator: orchestrator,
		queue:        queue,
		processor:    processor,
		publisher:    publisher,
		logger:       logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/conversations", s.handleCreateConversation)
		api.GET("/conversations/:id/messages", s.handleListMessages)
		api.POST("/messages", s.handleCreateMessage)
		api.GET("/messages/:id/replies", s.handleListReplies)
		api.POST("/messages/:id/reactions", s.handleToggleReaction)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createConversationRequest struct {
	IsChannel bool     `json:"is_channel"`
	MemberIDs []string `json:"member_ids" binding:"required"`
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	members := req.MemberIDs
	if !containsString(members, userID) {
		members = append(members, userID)
	}

	// A one-on-one chat between the same two people is reused, not recreated.
	if !req.IsChannel && len(members) == 2 {
		existing, err := s.store.FindDirectConversation(members[0], members[1])
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up conversation"})
			return
		}
		if existing != "" {
			conversation, err := s.store.GetConversation(existing)
			if err != nil || conversation == nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
				return
			}
			c.JSON(http.StatusOK, conversation)
			return
		}
	}

	conversation, err := s.store.CreateConversation(req.IsChannel, members)
	if err != nil {
		s.logger.Error("Failed to create conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, conversation)
}

func (s *Server) handleListMessages(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}
	conversationID := c.Param("id")

	member, err := s.store.IsMember(conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
		return
	}

	messages, err := s.store.ListMessages(conversationID)
	if err != nil {
		s.logger.Error("Failed to list messages",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) handleListReplies(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}
	parentID := c.Param("id")

	parent, err := s.store.GetMessage(parentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if parent == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	member, err := s.store.IsMember(parent.ConversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
		return
	}

	replies, err := s.store.ListThreadReplies(parentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list replies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": replies})
}

type createMessageRequest struct {
	ConversationID  string             `json:"conversation_id" binding:"required"`
	Content         string             `json:"content"`
	FileAttachments []store.Attachment `json:"file_attachments"`
	ParentMessageID string             `json:"parent_message_id"`
}

func (s *Server) handleCreateMessage(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" && len(req.FileAttachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message needs content or file attachments"})
		return
	}

	member, err := s.store.IsMember(req.ConversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
		return
	}

	message, err := s.store.CreateMessage(store.NewMessageInput{
		ConversationID:  req.ConversationID,
		CreatedBy:       userID,
		Content:         req.Content,
		FileAttachments: req.FileAttachments,
		ParentMessageID: req.ParentMessageID,
	})
	if err != nil {
		s.logger.Error("Failed to create message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}

	s.publishEvent(c.Request.Context(), req.ConversationID, "new-message", message)
	s.enqueueAttachments(message)
	s.maybeRespond(*message)

	c.JSON(http.StatusCreated, message)
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (s *Server) handleToggleReaction(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}
	messageID := c.Param("id")

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := s.store.GetMessage(messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if message == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	member, err := s.store.IsMember(message.ConversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
		return
	}

	updated, err := s.store.ToggleReaction(messageID, userID, req.Emoji)
	if err != nil {
		s.logger.Error("Failed to toggle reaction",
			zap.String("message_id", messageID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to toggle reaction"})
		return
	}

	s.publishEvent(c.Request.Context(), updated.ConversationID, "message-updated", updated)
	c.JSON(http.StatusOK, updated)
}

// enqueueAttachments hands every attachment to the background queue for
// indexing. Queue pressure drops the work with a log line; the message
// itself has already been accepted.
func (s *Server) enqueueAttachments(message *store.Message) {
	for _, att := range message.FileAttachments {
		att := att
		err := s.queue.Enqueue(jobs.Task{
			Name: fmt.Sprintf("index-file %s", att.FileID),
			Run: func(ctx context.Context) error {
				return s.processor.Process(ctx, att)
			},
		})
		if err != nil {
			s.logger.Warn("Could not enqueue file for indexing",
				zap.String("file_id", att.FileID),
				zap.Error(err))
		}
	}
}

// maybeRespond kicks off reply generation when the bot is part of the
// conversation. Generation runs detached from the request with its own
// deadline, so posting a message never waits on the model.
func (s *Server) maybeRespond(trigger store.Message) {
	if trigger.CreatedBy == s.cfg.Responder.BotUserID {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()

		var botIsMember bool
		err := resilience.SimpleRetry(ctx, s.logger, func(ctx context.Context) error {
			var err error
			botIsMember, err = s.store.IsMember(trigger.ConversationID, s.cfg.Responder.BotUserID)
			return err
		})
		if err != nil {
			s.logger.Warn("Failed to check bot membership",
				zap.String("conversation_id", trigger.ConversationID),
				zap.Error(err))
			return
		}
		if !botIsMember {
			return
		}

		if _, err := s.orchestrator.Respond(ctx, trigger); err != nil {
			s.logger.Error("Reply generation failed",
				zap.String("conversation_id", trigger.ConversationID),
				zap.String("message_id", trigger.ID),
				zap.Error(err))
		}
	}()
}

func (s *Server) publishEvent(ctx context.Context, conversationID, event string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	channel := realtime.ConversationChannel(s.cfg.Redis.ChannelPrefix, conversationID)
	if err := s.publisher.Publish(ctx, channel, event, payload); err != nil {
		s.logger.Warn("Failed to publish realtime event",
			zap.String("channel", channel),
			zap.String("event", event),
			zap.Error(err))
	}
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
