// Package memory содержит резервные in-memory репозитории, которые
// используются, когда база данных не настроена. Данные живут до перезапуска.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/crm-backend/internal/models"
)

// Store хранит все таблицы под одним мьютексом, чтобы связи между
// сущностями (участники списков, ссылки сделок на контакты) оставались согласованными.
type Store struct {
	mu sync.RWMutex

	users        map[uuid.UUID]models.User
	sessions     map[string]models.Session
	contacts     map[uuid.UUID]models.Contact
	stages       map[uuid.UUID]models.PipelineStage
	deals        map[uuid.UUID]models.Deal
	activities   map[uuid.UUID]models.Activity
	proposals    map[uuid.UUID]models.Proposal
	lists        map[uuid.UUID]models.MarketingList
	members      map[uuid.UUID][]listMember
	campaigns    map[uuid.UUID]models.Campaign
	deliveries   map[uuid.UUID][]models.CampaignDelivery
	appointments map[uuid.UUID]models.Appointment
	settings     *models.CompanySettings
	fields       map[string]models.FieldConfig
	chat         map[uuid.UUID][]models.ChatMessage
	attachments  map[uuid.UUID]models.Attachment

	now func() time.Time
}

type listMember struct {
	contactID uuid.UUID
	addedAt   time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		users:        make(map[uuid.UUID]models.User),
		sessions:     make(map[string]models.Session),
		contacts:     make(map[uuid.UUID]models.Contact),
		stages:       make(map[uuid.UUID]models.PipelineStage),
		deals:        make(map[uuid.UUID]models.Deal),
		activities:   make(map[uuid.UUID]models.Activity),
		proposals:    make(map[uuid.UUID]models.Proposal),
		lists:        make(map[uuid.UUID]models.MarketingList),
		members:      make(map[uuid.UUID][]listMember),
		campaigns:    make(map[uuid.UUID]models.Campaign),
		deliveries:   make(map[uuid.UUID][]models.CampaignDelivery),
		appointments: make(map[uuid.UUID]models.Appointment),
		fields:       make(map[string]models.FieldConfig),
		chat:         make(map[uuid.UUID][]models.ChatMessage),
		attachments:  make(map[uuid.UUID]models.Attachment),
		now:          time.Now,
	}
}

// values возвращает копии значений карты, отфильтрованные keep.
func values[K comparable, V any](m map[K]V, keep func(*V) bool) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		v := v
		if keep == nil || keep(&v) {
			out = append(out, v)
		}
	}
	return out
}

// page применяет limit/offset к уже отсортированному срезу.
func page[V any](items []V, limit, offset int) []V {
	if offset >= len(items) {
		return make([]V, 0)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// newestFirst сортирует по убыванию времени создания, при равенстве по id.
func newestFirst[V any](items []V, created func(*V) time.Time, id func(*V) uuid.UUID) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(&items[i]), created(&items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(&items[i]).String() < id(&items[j]).String()
	})
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneFields(in models.CustomFields) models.CustomFields {
	out := make(models.CustomFields, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func uuidEq(p *uuid.UUID, id uuid.UUID) bool {
	return p != nil && *p == id
}
