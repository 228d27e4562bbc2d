package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/money"
)

// SeedDeps репозитории, которые заполняет SeedService.
type SeedDeps struct {
	Contacts     ContactRepository
	Stages       StageSource
	Deals        DealRepository
	Activities   ActivityCreator
	Appointments AppointmentRepository
	Marketing    MarketingRepository
	// Index перестраивает поисковый индекс после генерации, может отсутствовать.
	Index ContactReindexer
}

// ContactReindexer загружает контакты хранилища в поисковый индекс.
type ContactReindexer interface {
	ReindexContacts(ctx context.Context) (int, error)
}

// SeedResult количество созданных записей.
type SeedResult struct {
	Contacts     int
	Deals        int
	Activities   int
	Appointments int
	Skipped      bool
}

// SeedService генерирует демонстрационные данные для режима без базы.
type SeedService struct {
	deps SeedDeps
	rnd  *rand.Rand
	now  func() time.Time
}

// NewSeedService создаёт генератор. Одинаковый seed даёт одинаковые данные.
func NewSeedService(deps SeedDeps, seed int64) *SeedService {
	return &SeedService{deps: deps, rnd: rand.New(rand.NewSource(seed)), now: time.Now}
}

var (
	seedMaleNames   = []string{"Александр", "Дмитрий", "Максим", "Сергей", "Андрей", "Алексей", "Илья", "Иван"}
	seedFemaleNames = []string{"Анна", "Мария", "Елена", "Ольга", "Татьяна", "Наталья", "Ирина", "Светлана"}
	seedLastNames   = []string{
		"Иванов", "Петров", "Смирнов", "Козлов", "Соколов", "Попов", "Лебедев", "Новиков",
		"Морозов", "Волков", "Васильев", "Зайцев", "Павлов", "Семёнов", "Фёдоров", "Белов",
	}
	seedCompanies = []string{
		"Альфа Логистик", "Северсталь Трейд", "ТехноСфера", "Горизонт", "ПромСнаб",
		"Восток Медиа", "Сибирь Агро", "Нева Девелопмент", "Балтик Софт", "Урал Инвест",
	}
	seedPositions = []string{"Генеральный директор", "Коммерческий директор", "Руководитель отдела закупок", "Маркетолог", "ИТ-директор"}
	seedSources   = []string{"website", "referral", "exhibition", "cold_call", "linkedin"}
	seedDeals     = []string{"Внедрение CRM", "Годовая поддержка", "Аудит процессов", "Обучение сотрудников", "Интеграция с 1С", "Настройка аналитики"}
	seedDomains   = []string{"example.com", "example.org", "example.net"}
)

// SeedDemo заполняет пустое хранилище контактами, сделками, задачами и встречами.
// Если контакты уже есть, ничего не делает.
func (s *SeedService) SeedDemo(ctx context.Context, ownerID *uuid.UUID, numContacts int) (*SeedResult, error) {
	if numContacts <= 0 {
		numContacts = 20
	}

	_, total, err := s.deps.Contacts.List(ctx, models.ContactFilter{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("seed service: count contacts: %w", err)
	}
	if total > 0 {
		return &SeedResult{Skipped: true}, nil
	}

	stages, err := s.deps.Stages.Stages(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed service: stages: %w", err)
	}

	res := &SeedResult{}
	contacts, err := s.generateContacts(ctx, ownerID, numContacts)
	if err != nil {
		return nil, err
	}
	res.Contacts = len(contacts)

	if res.Deals, err = s.generateDeals(ctx, ownerID, contacts, stages); err != nil {
		return nil, err
	}
	if res.Activities, err = s.generateActivities(ctx, ownerID, contacts); err != nil {
		return nil, err
	}
	if res.Appointments, err = s.generateAppointments(ctx, ownerID, contacts); err != nil {
		return nil, err
	}
	if err := s.generateList(ctx, ownerID, contacts); err != nil {
		return nil, err
	}
	if s.deps.Index != nil {
		if _, err := s.deps.Index.ReindexContacts(ctx); err != nil {
			logger.Log.WithError(err).Warn("seed service: демо-контакты не попали в поисковый индекс")
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"contacts":     res.Contacts,
		"deals":        res.Deals,
		"activities":   res.Activities,
		"appointments": res.Appointments,
	}).Info("seed service: демо-данные созданы")
	return res, nil
}

func (s *SeedService) pick(items []string) string {
	return items[s.rnd.Intn(len(items))]
}

func (s *SeedService) generateContacts(ctx context.Context, ownerID *uuid.UUID, count int) ([]models.Contact, error) {
	statuses := []string{
		models.ContactStatusLead, models.ContactStatusLead, models.ContactStatusProspect,
		models.ContactStatusCustomer, models.ContactStatusInactive,
	}

	contacts := make([]models.Contact, 0, count)
	for i := 0; i < count; i++ {
		first, last := s.pick(seedMaleNames), s.pick(seedLastNames)
		if s.rnd.Intn(2) == 0 {
			first, last = s.pick(seedFemaleNames), last+"а"
		}
		email := fmt.Sprintf("%s.%s%d@%s", strings.ToLower(toLatin(first)), strings.ToLower(toLatin(last)), i+1, s.pick(seedDomains))
		phone := fmt.Sprintf("+7 9%02d %03d-%02d-%02d", s.rnd.Intn(100), s.rnd.Intn(1000), s.rnd.Intn(100), s.rnd.Intn(100))
		company, position, source := s.pick(seedCompanies), s.pick(seedPositions), s.pick(seedSources)

		c := models.Contact{
			OwnerID:      ownerID,
			FirstName:    first,
			LastName:     last,
			Email:        &email,
			Phone:        &phone,
			Company:      &company,
			Position:     &position,
			Status:       statuses[s.rnd.Intn(len(statuses))],
			Source:       &source,
			Tags:         []string{"demo"},
			CustomFields: models.CustomFields{},
		}
		if err := s.deps.Contacts.Create(ctx, &c); err != nil {
			return nil, fmt.Errorf("seed service: create contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func (s *SeedService) generateDeals(ctx context.Context, ownerID *uuid.UUID, contacts []models.Contact, stages []models.PipelineStage) (int, error) {
	if len(stages) == 0 {
		return 0, nil
	}
	now := s.now()
	created := 0
	for i := range contacts {
		if i%2 == 1 {
			continue
		}
		stage := stages[s.rnd.Intn(len(stages))]
		closeDate := now.AddDate(0, 0, 7+s.rnd.Intn(60))
		d := models.Deal{
			Title:             s.pick(seedDeals) + " для " + deref(contacts[i].Company),
			ContactID:         &contacts[i].ID,
			OwnerID:           ownerID,
			StageID:           stage.ID,
			Value:             money.Round2(float64(500+s.rnd.Intn(20000)) * 10),
			Currency:          "RUB",
			Status:            stage.DealStatus(),
			ExpectedCloseDate: &closeDate,
			CustomFields:      models.CustomFields{},
		}
		if d.Status != models.DealStatusOpen {
			closed := now.AddDate(0, 0, -s.rnd.Intn(20))
			d.ClosedAt = &closed
		}
		if err := s.deps.Deals.Create(ctx, &d); err != nil {
			return created, fmt.Errorf("seed service: create deal: %w", err)
		}
		created++
	}
	return created, nil
}

func (s *SeedService) generateActivities(ctx context.Context, ownerID *uuid.UUID, contacts []models.Contact) (int, error) {
	types := []string{models.ActivityTypeCall, models.ActivityTypeEmail, models.ActivityTypeTask, models.ActivityTypeNote}
	subjects := map[string]string{
		models.ActivityTypeCall:  "Звонок: обсуждение потребностей",
		models.ActivityTypeEmail: "Отправлена презентация",
		models.ActivityTypeTask:  "Подготовить коммерческое предложение",
		models.ActivityTypeNote:  "Клиент просит скидку за годовой контракт",
	}

	now := s.now()
	created := 0
	for i := range contacts {
		typ := types[i%len(types)]
		a := models.Activity{
			Type:      typ,
			Subject:   subjects[typ],
			ContactID: &contacts[i].ID,
			UserID:    ownerID,
		}
		if typ == models.ActivityTypeTask {
			due := now.Add(time.Duration(s.rnd.Intn(96)-24) * time.Hour)
			a.DueAt = &due
		}
		if err := s.deps.Activities.Create(ctx, &a); err != nil {
			return created, fmt.Errorf("seed service: create activity: %w", err)
		}
		created++
	}
	return created, nil
}

func (s *SeedService) generateAppointments(ctx context.Context, ownerID *uuid.UUID, contacts []models.Contact) (int, error) {
	day := s.now().Truncate(24 * time.Hour)
	created := 0
	for i := 0; i < len(contacts) && i < 5; i++ {
		start := day.AddDate(0, 0, i+1).Add(time.Duration(10+s.rnd.Intn(7)) * time.Hour)
		location := "Офис клиента, " + deref(contacts[i].Company)
		a := models.Appointment{
			Title:     "Встреча с " + contacts[i].FirstName + " " + contacts[i].LastName,
			ContactID: &contacts[i].ID,
			UserID:    ownerID,
			StartsAt:  start,
			EndsAt:    start.Add(DefaultAppointmentDuration * 2),
			Location:  &location,
			Status:    models.AppointmentStatusScheduled,
		}
		if err := s.deps.Appointments.Create(ctx, &a); err != nil {
			return created, fmt.Errorf("seed service: create appointment: %w", err)
		}
		created++
	}
	return created, nil
}

func (s *SeedService) generateList(ctx context.Context, ownerID *uuid.UUID, contacts []models.Contact) error {
	if s.deps.Marketing == nil {
		return nil
	}
	description := "Контакты со статусом customer"
	list := &models.MarketingList{Name: "Клиенты", Description: &description, CreatedBy: ownerID}
	if err := s.deps.Marketing.CreateList(ctx, list); err != nil {
		return fmt.Errorf("seed service: create list: %w", err)
	}

	var ids []uuid.UUID
	for _, c := range contacts {
		if c.Status == models.ContactStatusCustomer {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.deps.Marketing.AddMembers(ctx, list.ID, ids); err != nil {
		return fmt.Errorf("seed service: add members: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// toLatin транслитерирует русские имена в латиницу для email.
func toLatin(s string) string {
	translit := map[rune]string{
		'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
		'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
		'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
		'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
		'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
		'А': "A", 'Б': "B", 'В': "V", 'Г': "G", 'Д': "D", 'Е': "E", 'Ё': "Yo",
		'Ж': "Zh", 'З': "Z", 'И': "I", 'Й': "Y", 'К': "K", 'Л': "L", 'М': "M",
		'Н': "N", 'О': "O", 'П': "P", 'Р': "R", 'С': "S", 'Т': "T", 'У': "U",
		'Ф': "F", 'Х': "H", 'Ц': "Ts", 'Ч': "Ch", 'Ш': "Sh", 'Щ': "Sch",
		'Ъ': "", 'Ы': "Y", 'Ь': "", 'Э': "E", 'Ю': "Yu", 'Я': "Ya",
	}

	var b strings.Builder
	for _, r := range s {
		if val, ok := translit[r]; ok {
			b.WriteString(val)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
