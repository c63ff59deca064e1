package store

import (
	"context"
	"time"

	"rental-service/internal/models"
)

const messageColumns = "id, sender_id, recipient_id, item_id, body, read_at, created_at"

// CreateMessage inserts a message
func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	m.CreatedAt = now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO messages (id, sender_id, recipient_id, item_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		m.ID, m.SenderID, m.RecipientID, m.ItemID, m.Body, m.CreatedAt)
	return err
}

// GetMessage retrieves a message by ID
func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	err := s.db.GetContext(ctx, &m, s.db.Rebind("SELECT "+messageColumns+" FROM messages WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err, "message", id)
	}
	return &m, nil
}

// ListConversation returns messages between two users, oldest first
func (s *Store) ListConversation(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, s.db.Rebind(`
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at, id`),
		userID, otherID, otherID, userID)
	return msgs, err
}

// ListInbox returns messages received by the user, newest first
func (s *Store) ListInbox(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, s.db.Rebind(
		"SELECT "+messageColumns+" FROM messages WHERE recipient_id = ? ORDER BY created_at DESC LIMIT ?"),
		userID, limit)
	return msgs, err
}

// MarkMessageRead sets read_at on an unread message addressed to recipientID
func (s *Store) MarkMessageRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	return affected(s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE messages SET read_at = ? WHERE id = ? AND recipient_id = ? AND read_at IS NULL`),
		at.UTC(), id, recipientID))
}
