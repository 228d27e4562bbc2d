package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository"
)

// mockAuthRepository реализует AuthRepository для тестов.
type mockAuthRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
	sessions     map[string]*models.Session
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
		sessions:     make(map[string]*models.Session),
	}
}

func (m *mockAuthRepository) Create(ctx context.Context, user *models.User) error {
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrUserExists
	}
	user.ID = uuid.New()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.usersByEmail[strings.ToLower(email)]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := m.usersByID[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) Count(ctx context.Context) (int, error) {
	return len(m.usersByID), nil
}

func (m *mockAuthRepository) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	m.sessions[session.RefreshToken] = session
	return nil
}

func (m *mockAuthRepository) GetSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	if s, ok := m.sessions[refreshToken]; ok {
		return s, nil
	}
	return nil, repository.ErrSessionNotFound
}

func (m *mockAuthRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	delete(m.sessions, refreshToken)
	return nil
}

func (m *mockAuthRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if user, ok := m.usersByID[userID]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}

func (m *mockAuthRepository) addUser(t *testing.T, email, password, role string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     active,
	}
	m.usersByEmail[email] = user
	m.usersByID[user.ID] = user
	return user
}

func newTestAuthService(repo *mockAuthRepository) *AuthService {
	return NewAuthService(repo, NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour))
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := newMockAuthRepository()
	service := newTestAuthService(repo)
	ctx := context.Background()

	res, err := service.Register(ctx, RegisterInput{
		Email:    "Test@Example.com",
		Password: "password123",
	}, nil, map[string]string{"ip": "127.0.0.1"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, res.User.ID)
	assert.Equal(t, "test@example.com", res.User.Email)
	assert.Equal(t, models.RoleAdmin, res.User.Role, "первый пользователь становится администратором")
	assert.True(t, res.User.IsActive)
	require.Len(t, repo.sessions, 1)
	for _, s := range repo.sessions {
		require.NotNil(t, s.IPAddress)
		assert.Equal(t, "127.0.0.1", *s.IPAddress)
	}

	loginRes, err := service.Login(ctx, LoginInput{Email: "test@example.com", Password: "password123"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, loginRes.TokenPair.AccessToken)
	assert.NotNil(t, repo.usersByID[res.User.ID].LastLoginAt)
}

func TestAuthService_RegisterRoles(t *testing.T) {
	repo := newMockAuthRepository()
	service := newTestAuthService(repo)
	ctx := context.Background()
	admin := repo.addUser(t, "admin@example.com", "password1", models.RoleAdmin, true)

	res, err := service.Register(ctx, RegisterInput{Email: "agent@example.com", Password: "password1"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAgent, res.User.Role)

	_, err = service.Register(ctx, RegisterInput{Email: "mgr@example.com", Password: "password1", Role: models.RoleManager}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))

	_, err = service.Register(ctx, RegisterInput{Email: "mgr@example.com", Password: "password1", Role: models.RoleManager},
		&Actor{UserID: uuid.New(), Role: models.RoleManager}, nil)
	assert.True(t, apperror.IsForbidden(err))

	res, err = service.Register(ctx, RegisterInput{Email: "mgr@example.com", Password: "password1", Role: models.RoleManager},
		&Actor{UserID: admin.ID, Role: models.RoleAdmin}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, res.User.Role)

	_, err = service.Register(ctx, RegisterInput{Email: "x@example.com", Password: "password1", Role: "owner"}, nil, nil)
	assert.True(t, apperror.IsValidation(err))
}

func TestAuthService_RegisterValidation(t *testing.T) {
	service := newTestAuthService(newMockAuthRepository())
	ctx := context.Background()

	_, err := service.Register(ctx, RegisterInput{Email: "bad", Password: "password1"}, nil, nil)
	assert.True(t, apperror.IsValidation(err))

	_, err = service.Register(ctx, RegisterInput{Email: "ok@example.com", Password: "short1"}, nil, nil)
	assert.True(t, apperror.IsValidation(err))

	_, err = service.Register(ctx, RegisterInput{Email: "ok@example.com", Password: "onlyletters"}, nil, nil)
	assert.True(t, apperror.IsValidation(err))
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	repo := newMockAuthRepository()
	service := newTestAuthService(repo)
	repo.addUser(t, "dup@example.com", "password1", models.RoleAgent, true)

	_, err := service.Register(context.Background(), RegisterInput{Email: "dup@example.com", Password: "password1"}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
	assert.Contains(t, err.Error(), "email уже зарегистрирован")
}

func TestAuthService_LoginFailures(t *testing.T) {
	repo := newMockAuthRepository()
	service := newTestAuthService(repo)
	ctx := context.Background()
	repo.addUser(t, "active@example.com", "password1", models.RoleAgent, true)
	repo.addUser(t, "blocked@example.com", "password1", models.RoleAgent, false)

	_, err := service.Login(ctx, LoginInput{Email: "active@example.com", Password: "wrong-pass1"}, nil)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 401, appErr.HTTPStatus)

	_, err = service.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password1"}, nil)
	appErr, ok = apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 401, appErr.HTTPStatus)

	_, err = service.Login(ctx, LoginInput{Email: "blocked@example.com", Password: "password1"}, nil)
	assert.True(t, apperror.IsForbidden(err))
}

func TestAuthService_RefreshRotatesSession(t *testing.T) {
	repo := newMockAuthRepository()
	service := newTestAuthService(repo)
	ctx := context.Background()
	repo.addUser(t, "user@example.com", "password1", models.RoleAgent, true)

	res, err := service.Login(ctx, LoginInput{Email: "user@example.com", Password: "password1"}, nil)
	require.NoError(t, err)
	old := res.TokenPair.RefreshToken

	newPair, err := service.Refresh(ctx, old, nil)
	require.NoError(t, err)
	assert.NotEqual(t, old, newPair.RefreshToken)
	assert.NotContains(t, repo.sessions, old)
	assert.Contains(t, repo.sessions, newPair.RefreshToken)

	// старый токен больше не принимается
	_, err = service.Refresh(ctx, old, nil)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 401, appErr.HTTPStatus)

	_, err = service.Refresh(ctx, "garbage", nil)
	require.Error(t, err)
}

func TestAuthService_RefreshExpiredSession(t *testing.T) {
	repo := newMockAuthRepository()
	service := newTestAuthService(repo)
	ctx := context.Background()
	repo.addUser(t, "user@example.com", "password1", models.RoleAgent, true)

	res, err := service.Login(ctx, LoginInput{Email: "user@example.com", Password: "password1"}, nil)
	require.NoError(t, err)

	service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = service.Refresh(ctx, res.TokenPair.RefreshToken, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "сессия истекла")
	assert.Empty(t, repo.sessions)
}

func TestAuthService_LogoutAndMe(t *testing.T) {
	repo := newMockAuthRepository()
	service := newTestAuthService(repo)
	ctx := context.Background()
	user := repo.addUser(t, "user@example.com", "password1", models.RoleAgent, true)

	res, err := service.Login(ctx, LoginInput{Email: "user@example.com", Password: "password1"}, nil)
	require.NoError(t, err)
	require.NoError(t, service.Logout(ctx, res.TokenPair.RefreshToken))
	assert.Empty(t, repo.sessions)
	assert.True(t, apperror.IsValidation(service.Logout(ctx, " ")))

	me, err := service.Me(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, me.Email)

	_, err = service.Me(ctx, uuid.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestAuthService_EnsureSeedAdmin(t *testing.T) {
	repo := newMockAuthRepository()
	service := newTestAuthService(repo)
	ctx := context.Background()

	user, err := service.EnsureSeedAdmin(ctx, "", "")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = service.EnsureSeedAdmin(ctx, "root@example.com", "password1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, models.RoleAdmin, user.Role)

	user, err = service.EnsureSeedAdmin(ctx, "other@example.com", "password1")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestTokenManager_ParseAccess(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleManager}

	pair, accessExp, refreshExp, err := tm.GeneratePair(user)
	require.NoError(t, err)
	assert.True(t, accessExp.Before(refreshExp))

	id, role, err := tm.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	assert.Equal(t, models.RoleManager, role)

	_, _, err = tm.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)
}

func TestTokenManager_TokenTypesAreNotInterchangeable(t *testing.T) {
	tm := NewTokenManager("same-secret", "same-secret", time.Minute, time.Hour)
	pair, _, _, err := tm.GeneratePair(&models.User{ID: uuid.New(), Role: models.RoleAgent})
	require.NoError(t, err)
	assert.Equal(t, int64(60), pair.ExpiresIn)

	_, _, err = tm.ParseAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = tm.ParseRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	claims, err := tm.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsExpiredAccess(t *testing.T) {
	tm := NewTokenManager("a", "r", time.Minute, time.Hour)
	pair, _, _, err := tm.GeneratePair(&models.User{ID: uuid.New(), Role: models.RoleAgent})
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, err = tm.ParseAccess(pair.AccessToken)
	assert.Error(t, err)
}
