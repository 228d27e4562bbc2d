package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// UserRepository - in-memory реализация пользователей и сессий.
type UserRepository struct{ s *Store }

func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrUserExists
		}
	}
	now := r.s.now()
	user.ID = uuid.New()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = *user
	return nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

func (r *UserRepository) UpdateLastLoginAt(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	now := r.s.now()
	u.LastLoginAt = &now
	r.s.users[userID] = u
	return nil
}

func (r *UserRepository) CreateSession(_ context.Context, session *models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session.ID = uuid.New()
	session.CreatedAt = r.s.now()
	r.s.sessions[session.RefreshToken] = *session
	return nil
}

func (r *UserRepository) GetSession(_ context.Context, refreshToken string) (*models.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[refreshToken]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return &session, nil
}

func (r *UserRepository) DeleteSession(_ context.Context, refreshToken string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, refreshToken)
	return nil
}
