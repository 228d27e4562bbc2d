package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/crm-backend/internal/models"
)

// ChatRepository хранит историю диалогов с AI-ассистентом.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository создаёт экземпляр репозитория.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Add сохраняет сообщение.
func (r *ChatRepository) Add(ctx context.Context, m *models.ChatMessage) error {
	if err := r.db.QueryRowxContext(ctx, `
		INSERT INTO chat_messages (user_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, m.UserID, m.Role, m.Content,
	).Scan(&m.ID, &m.CreatedAt); err != nil {
		return fmt.Errorf("chat repository: add %w", err)
	}
	return nil
}

// Recent возвращает последние limit сообщений пользователя в хронологическом порядке.
func (r *ChatRepository) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	items := make([]models.ChatMessage, 0)
	query := `
		SELECT id, user_id, role, content, created_at FROM (
			SELECT id, user_id, role, content, created_at
			FROM chat_messages
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &items, query, userID, limit); err != nil {
		return nil, fmt.Errorf("chat repository: recent %w", err)
	}
	return items, nil
}

// Clear удаляет историю пользователя.
func (r *ChatRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("chat repository: clear %w", err)
	}
	return nil
}
