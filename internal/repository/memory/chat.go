package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// ChatRepository - in-memory история диалогов.
type ChatRepository struct{ s *Store }

func (s *Store) Chat() *ChatRepository { return &ChatRepository{s: s} }

func (r *ChatRepository) Add(_ context.Context, m *models.ChatMessage) error {
	userID, err := uuid.Parse(m.UserID)
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m.ID = uuid.NewString()
	m.CreatedAt = r.s.now()
	r.s.chat[userID] = append(r.s.chat[userID], *m)
	return nil
}

func (r *ChatRepository) Recent(_ context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	history := r.s.chat[userID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append(make([]models.ChatMessage, 0, len(history)), history...), nil
}

func (r *ChatRepository) Clear(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.chat, userID)
	return nil
}

// AttachmentRepository - in-memory реестр загруженных файлов.
type AttachmentRepository struct{ s *Store }

func (s *Store) Attachments() *AttachmentRepository { return &AttachmentRepository{s: s} }

func (r *AttachmentRepository) Create(_ context.Context, a *models.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a.ID = uuid.New()
	a.CreatedAt = r.s.now()
	r.s.attachments[a.ID] = *a
	return nil
}

func (r *AttachmentRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.attachments[id]
	if !ok {
		return nil, repository.ErrAttachmentNotFound
	}
	return &a, nil
}

func (r *AttachmentRepository) List(_ context.Context, entityType string, entityID *uuid.UUID, userID *uuid.UUID) ([]models.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := values(r.s.attachments, func(a *models.Attachment) bool {
		if entityType != "" && (a.EntityType == nil || *a.EntityType != entityType) {
			return false
		}
		if entityID != nil && !uuidEq(a.EntityID, *entityID) {
			return false
		}
		if userID != nil && a.UserID != *userID {
			return false
		}
		return true
	})
	newestFirst(items,
		func(a *models.Attachment) time.Time { return a.CreatedAt },
		func(a *models.Attachment) uuid.UUID { return a.ID })
	return items, nil
}

func (r *AttachmentRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.attachments[id]; !ok {
		return repository.ErrAttachmentNotFound
	}
	delete(r.s.attachments, id)
	return nil
}
