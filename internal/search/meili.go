// Package search индексирует контакты в Meilisearch.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
)

const contactsIndex = "crm_contacts"

// ErrUnhealthy возвращается, пока Meilisearch недоступен.
var ErrUnhealthy = errors.New("search: meilisearch недоступен")

// ContactDocument документ контакта в индексе.
type ContactDocument struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Company   string   `json:"company,omitempty"`
	Status    string   `json:"status"`
	Tags      []string `json:"tags"`
}

// NewContactDocument строит документ индекса из контакта.
func NewContactDocument(c *models.Contact) ContactDocument {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return ContactDocument{
		ID:        c.ID.String(),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     deref(c.Email),
		Phone:     deref(c.Phone),
		Company:   deref(c.Company),
		Status:    c.Status,
		Tags:      tags,
	}
}

// Meili индекс контактов. Состояние здоровья обновляется в фоне,
// поиск при недоступном сервере сразу возвращает ErrUnhealthy.
type Meili struct {
	client    meili.ServiceManager
	healthy   atomic.Bool
	onRecover func(ctx context.Context)
}

// NewMeili подключается к Meilisearch и настраивает индекс.
// Недоступный сервер не считается ошибкой: индекс просто помечается нездоровым.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{client: meili.New(url, meili.WithAPIKey(apiKey))}
	if _, err := m.client.Health(); err != nil {
		logger.Log.WithFields(logrus.Fields{"url": url, "error": err}).Warn("search: meilisearch недоступен")
		return m
	}
	m.healthy.Store(true)
	m.configure()
	return m
}

func (m *Meili) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: contactsIndex, PrimaryKey: "id"}); err != nil {
		logger.Log.WithError(err).Debug("search: создание индекса (возможно, уже существует)")
	}
	searchable := []string{"first_name", "last_name", "email", "company", "phone", "tags"}
	if _, err := m.client.Index(contactsIndex).UpdateSearchableAttributes(&searchable); err != nil {
		logger.Log.WithError(err).Warn("search: не удалось обновить searchable атрибуты")
	}
}

// OnRecover задаёт функцию, которая вызывается после восстановления Meilisearch.
// Вызывать до запуска Watch.
func (m *Meili) OnRecover(fn func(ctx context.Context)) {
	m.onRecover = fn
}

// Watch периодически проверяет здоровье Meilisearch до отмены ctx.
func (m *Meili) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Swap(err == nil)
			if err == nil && !was {
				logger.Log.Info("search: meilisearch снова доступен")
				m.configure()
				if m.onRecover != nil {
					m.onRecover(ctx)
				}
			}
		}
	}
}

// Name имя бэкенда для /health.
func (m *Meili) Name() string { return "meilisearch" }

// Healthy сообщает, доступен ли Meilisearch.
func (m *Meili) Healthy(_ context.Context) bool {
	return m.healthy.Load()
}

// IndexContact добавляет или обновляет контакт в индексе.
func (m *Meili) IndexContact(_ context.Context, c *models.Contact) error {
	if !m.healthy.Load() {
		return ErrUnhealthy
	}
	if _, err := m.client.Index(contactsIndex).AddDocuments([]ContactDocument{NewContactDocument(c)}, nil); err != nil {
		return fmt.Errorf("search: индексация контакта %s: %w", c.ID, err)
	}
	return nil
}

// IndexContacts загружает пачку контактов в индекс.
func (m *Meili) IndexContacts(_ context.Context, contacts []models.Contact) error {
	if !m.healthy.Load() {
		return ErrUnhealthy
	}
	if len(contacts) == 0 {
		return nil
	}
	docs := make([]ContactDocument, 0, len(contacts))
	for i := range contacts {
		docs = append(docs, NewContactDocument(&contacts[i]))
	}
	if _, err := m.client.Index(contactsIndex).AddDocuments(docs, nil); err != nil {
		return fmt.Errorf("search: индексация %d контактов: %w", len(docs), err)
	}
	return nil
}

// RemoveContact удаляет контакт из индекса.
func (m *Meili) RemoveContact(_ context.Context, id uuid.UUID) error {
	if !m.healthy.Load() {
		return ErrUnhealthy
	}
	if _, err := m.client.Index(contactsIndex).DeleteDocument(id.String(), nil); err != nil {
		return fmt.Errorf("search: удаление контакта %s: %w", id, err)
	}
	return nil
}

// SearchContacts возвращает идентификаторы контактов в порядке релевантности.
func (m *Meili) SearchContacts(_ context.Context, query string, limit int) ([]uuid.UUID, error) {
	if !m.healthy.Load() {
		return nil, ErrUnhealthy
	}
	if limit <= 0 {
		limit = 20
	}
	resp, err := m.client.Index(contactsIndex).Search(strings.TrimSpace(query), &meili.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("search: поиск контактов: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, ok := hit["id"]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
