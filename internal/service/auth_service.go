package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Count(ctx context.Context) (int, error)
	UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, refreshToken string) (*models.Session, error)
	DeleteSession(ctx context.Context, refreshToken string) error
}

// AuthService инкапсулирует бизнес-логику регистрации и аутентификации.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
	now          func() time.Time
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
		now:          time.Now,
	}
}

// Register создаёт нового пользователя. Первый пользователь системы
// становится администратором; роли admin и manager может выдать только администратор.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, caller *Actor, meta map[string]string) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = deriveUsername(email)
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}

	role, err := s.resolveRole(ctx, in.Role, caller)
	if err != nil {
		return nil, err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	user := &models.User{
		Email:        email,
		Username:     deriveUsername(email),
		DisplayName:  displayName,
		PasswordHash: string(passHash),
		Role:         role,
		IsActive:     true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperror.Conflict("email уже зарегистрирован")
		}
		return nil, apperror.Internal(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("auth service: пользователь зарегистрирован")

	pair, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, TokenPair: pair}, nil
}

func (s *AuthService) resolveRole(ctx context.Context, requested string, caller *Actor) (string, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return "", apperror.Internal(err)
	}
	if count == 0 {
		return models.RoleAdmin, nil
	}

	role := strings.TrimSpace(requested)
	if role == "" {
		return models.RoleAgent, nil
	}
	if !models.IsValid(models.ValidRoles, role) {
		return "", apperror.Validation("недопустимая роль: %s", role)
	}
	if role != models.RoleAgent && (caller == nil || !caller.IsAdmin()) {
		return "", apperror.New(apperror.ErrCodeForbidden, "только администратор может назначать роль "+role)
	}
	return role, nil
}

// Login проверяет учётные данные и возвращает токены.
func (s *AuthService) Login(ctx context.Context, in LoginInput, meta map[string]string) (*AuthResult, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, apperror.Internal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, apperror.New(apperror.ErrCodeForbidden, "аккаунт заблокирован")
	}

	// Ошибка обновления времени входа не прерывает логин
	if err := s.repo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err.Error(),
		}).Warn("auth service: не удалось обновить last_login_at")
	}

	pair, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, TokenPair: pair}, nil
}

// Refresh ротирует refresh-сессию и выпускает новую пару токенов.
func (s *AuthService) Refresh(ctx context.Context, oldToken string, meta map[string]string) (*TokenPair, error) {
	claims, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "refresh токен невалиден")
	}

	session, err := s.repo.GetSession(ctx, oldToken)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperror.New(apperror.ErrCodeUnauthorized, "сессия не найдена")
		}
		return nil, apperror.Internal(err)
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.repo.DeleteSession(ctx, oldToken)
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "сессия истекла")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID != session.UserID {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "refresh токен невалиден")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, repoError(err, apperror.ErrUnauthorized)
	}
	if !user.IsActive {
		return nil, apperror.New(apperror.ErrCodeForbidden, "аккаунт заблокирован")
	}

	if err := s.repo.DeleteSession(ctx, oldToken); err != nil {
		return nil, apperror.Internal(err)
	}
	return s.issueSession(ctx, user, meta)
}

// Logout удаляет refresh-сессию.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return apperror.Validation("refresh_token обязателен")
	}
	if err := s.repo.DeleteSession(ctx, refreshToken); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// Me возвращает текущего пользователя.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, repoError(err, apperror.ErrUserNotFound)
	}
	return user, nil
}

// EnsureSeedAdmin создаёт администратора из конфигурации, если пользователей ещё нет.
func (s *AuthService) EnsureSeedAdmin(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, nil
	}
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if count > 0 {
		return nil, nil
	}

	res, err := s.Register(ctx, RegisterInput{Email: email, Password: password, DisplayName: "Administrator"}, nil, nil)
	if err != nil {
		return nil, err
	}
	return res.User, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, meta map[string]string) (*TokenPair, error) {
	pair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    refreshExp,
	}
	if ua, ok := meta["user_agent"]; ok && ua != "" {
		session.UserAgent = &ua
	}
	if ip, ok := meta["ip"]; ok && ip != "" {
		session.IPAddress = &ip
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, apperror.Internal(err)
	}
	return pair, nil
}

// deriveUsername формирует username из email.
func deriveUsername(email string) string {
	name := strings.Split(email, "@")[0]
	name = strings.NewReplacer(".", "_", "+", "_").Replace(name)
	name = strings.ToLower(name)
	if len(name) < 3 {
		name = "user_" + uuid.NewString()[:6]
	}
	return name
}
