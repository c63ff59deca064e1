package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxMessageLength = 2000
	inboxLimit       = 100
)

// MessageService delivers direct messages between users
type MessageService struct {
	store     *store.Store
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewMessageService creates a new message service
func NewMessageService(store *store.Store, publisher *broker.EventPublisher) *MessageService {
	return &MessageService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// SendMessageRequest is a message to another user
type SendMessageRequest struct {
	RecipientID string  `json:"recipient_id" binding:"required"`
	ItemID      *string `json:"item_id" binding:"omitempty,uuid"`
	Body        string  `json:"body" binding:"required"`
}

// SendMessage stores a message and notifies the recipient
func (s *MessageService) SendMessage(ctx context.Context, senderID string, req *SendMessageRequest) (*models.Message, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.SendMessage", "sender_id", senderID)
	defer span.End()

	body := strings.TrimSpace(req.Body)
	if body == "" || utf8.RuneCountInString(body) > maxMessageLength {
		return nil, fmt.Errorf("body must be 1 to %d characters: %w", maxMessageLength, models.ErrInvalidInput)
	}
	if req.RecipientID == senderID {
		return nil, fmt.Errorf("cannot message yourself: %w", models.ErrInvalidInput)
	}

	if _, err := s.store.GetProfile(ctx, req.RecipientID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("recipient %s does not exist: %w", req.RecipientID, models.ErrInvalidInput)
		}
		return nil, util.RecordError(span, err)
	}

	var itemID *string
	if req.ItemID != nil && *req.ItemID != "" {
		if _, err := s.store.GetItem(ctx, *req.ItemID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("item %s does not exist: %w", *req.ItemID, models.ErrInvalidInput)
			}
			return nil, util.RecordError(span, err)
		}
		itemID = req.ItemID
	}

	m := &models.Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		ItemID:      itemID,
		Body:        body,
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to store message: %w", err))
	}

	util.MessagesSentTotal.Inc()
	event := &models.MessageEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeMessageCreated, m.RecipientID),
		Message:   *m,
	}
	if err := s.publisher.PublishMessageEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish message event", zap.String("message_id", m.ID), zap.Error(err))
	}
	return m, nil
}

// ListConversation returns the messages exchanged with another user
func (s *MessageService) ListConversation(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	return s.store.ListConversation(ctx, userID, otherID)
}

// ListInbox returns the most recent messages received by the user
func (s *MessageService) ListInbox(ctx context.Context, userID string) ([]models.Message, error) {
	return s.store.ListInbox(ctx, userID, inboxLimit)
}

// MarkRead marks a received message as read. Marking twice is not an error.
func (s *MessageService) MarkRead(ctx context.Context, userID, id string) (*models.Message, error) {
	m, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.RecipientID != userID {
		return nil, fmt.Errorf("message %s: %w", id, models.ErrForbidden)
	}

	at := time.Now().UTC()
	ok, err := s.store.MarkMessageRead(ctx, id, userID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to mark message read: %w", err)
	}
	if ok {
		m.ReadAt = &at
	}
	return m, nil
}
