package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
)

const (
	tokenIssuer      = "crm-backend"
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrWrongTokenType возвращается, когда refresh токен предъявлен вместо access и наоборот.
var ErrWrongTokenType = errors.New("неверный тип токена")

// TokenPair хранит пару access/refresh токенов. ExpiresIn в секундах.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// crmClaims клеймы обоих токенов. Role есть только в access.
type crmClaims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager отвечает за выпуск и проверку JWT.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// GeneratePair выпускает новую пару токенов и возвращает сроки их жизни.
func (m *TokenManager) GeneratePair(user *models.User) (*TokenPair, time.Time, time.Time, error) {
	now := m.now()
	accessExp := now.Add(m.accessTTL)
	refreshExp := now.Add(m.refreshTTL)

	accessToken, err := m.sign(crmClaims{
		Role:             user.Role,
		Type:             tokenTypeAccess,
		RegisteredClaims: registered(user.ID, now, accessExp, ""),
	}, m.accessSecret)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}

	// jti делает каждый refresh токен уникальным для таблицы сессий
	refreshToken, err := m.sign(crmClaims{
		Type:             tokenTypeRefresh,
		RegisteredClaims: registered(user.ID, now, refreshExp, uuid.NewString()),
	}, m.refreshSecret)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(m.accessTTL / time.Second),
	}, accessExp, refreshExp, nil
}

// ParseRefresh проверяет refresh токен и возвращает клеймы.
func (m *TokenManager) ParseRefresh(token string) (*jwt.RegisteredClaims, error) {
	claims, err := m.parse(token, m.refreshSecret, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &claims.RegisteredClaims, nil
}

// ParseAccess извлекает userID и роль из access токена.
func (m *TokenManager) ParseAccess(token string) (uuid.UUID, string, error) {
	claims, err := m.parse(token, m.accessSecret, tokenTypeAccess)
	if err != nil {
		return uuid.Nil, "", err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", jwt.ErrTokenInvalidClaims
	}
	return userID, claims.Role, nil
}

func (m *TokenManager) parse(token string, secret []byte, typ string) (*crmClaims, error) {
	claims := &crmClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != typ {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (m *TokenManager) sign(claims crmClaims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func registered(userID uuid.UUID, issuedAt, expiresAt time.Time, id string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID.String(),
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}
