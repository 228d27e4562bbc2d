package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/messaging"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

const maxCampaignContentLength = 20000

// MarketingRepository описывает хранилище списков рассылки и кампаний.
type MarketingRepository interface {
	CreateList(ctx context.Context, l *models.MarketingList) error
	GetList(ctx context.Context, id uuid.UUID) (*models.MarketingList, error)
	ListLists(ctx context.Context) ([]models.MarketingList, error)
	UpdateList(ctx context.Context, l *models.MarketingList) error
	DeleteList(ctx context.Context, id uuid.UUID) error
	AddMembers(ctx context.Context, listID uuid.UUID, contactIDs []uuid.UUID) (int, error)
	RemoveMember(ctx context.Context, listID, contactID uuid.UUID) error
	ListMembers(ctx context.Context, listID uuid.UUID) ([]models.Contact, error)

	CreateCampaign(ctx context.Context, c *models.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListCampaigns(ctx context.Context) ([]models.Campaign, error)
	UpdateCampaign(ctx context.Context, c *models.Campaign) error
	// ClaimCampaign атомарно переводит кампанию в sending.
	// false означает, что кампанию уже отправляет или отправил кто-то другой.
	ClaimCampaign(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteCampaign(ctx context.Context, id uuid.UUID) error
	ListDueCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error)
	CreateDeliveries(ctx context.Context, deliveries []models.CampaignDelivery) error
	ListDeliveries(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignDelivery, error)
}

// WhatsAppSender отправляет сообщения WhatsApp.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, phone, text string) error
}

// ListInput данные списка рассылки.
type ListInput struct {
	Name        string
	Description *string
}

// CampaignInput данные кампании.
type CampaignInput struct {
	Name    string
	Channel string
	ListID  *uuid.UUID
	Subject *string
	Content string
}

// MarketingService управляет списками рассылки и кампаниями.
type MarketingService struct {
	repo     MarketingRepository
	email    EmailSender
	whatsapp WhatsAppSender
	now      func() time.Time
}

// NewMarketingService создаёт сервис маркетинга.
func NewMarketingService(repo MarketingRepository, email EmailSender, whatsapp WhatsAppSender) *MarketingService {
	return &MarketingService{repo: repo, email: email, whatsapp: whatsapp, now: time.Now}
}

// CreateList создаёт список рассылки.
func (s *MarketingService) CreateList(ctx context.Context, actor Actor, in ListInput) (*models.MarketingList, error) {
	l := &models.MarketingList{}
	if err := applyListInput(l, in); err != nil {
		return nil, err
	}
	if actor.UserID != uuid.Nil {
		createdBy := actor.UserID
		l.CreatedBy = &createdBy
	}
	if err := s.repo.CreateList(ctx, l); err != nil {
		return nil, apperror.Internal(err)
	}
	return l, nil
}

// GetList возвращает список с числом участников.
func (s *MarketingService) GetList(ctx context.Context, id uuid.UUID) (*models.MarketingList, error) {
	l, err := s.repo.GetList(ctx, id)
	if err != nil {
		return nil, repoError(err, apperror.ErrListNotFound)
	}
	return l, nil
}

// Lists возвращает все списки рассылки.
func (s *MarketingService) Lists(ctx context.Context) ([]models.MarketingList, error) {
	lists, err := s.repo.ListLists(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return lists, nil
}

// UpdateList изменяет название и описание списка.
func (s *MarketingService) UpdateList(ctx context.Context, id uuid.UUID, in ListInput) (*models.MarketingList, error) {
	l, err := s.GetList(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyListInput(l, in); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateList(ctx, l); err != nil {
		return nil, repoError(err, apperror.ErrListNotFound)
	}
	return l, nil
}

// DeleteList удаляет список; кампании теряют ссылку на него.
func (s *MarketingService) DeleteList(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteList(ctx, id); err != nil {
		return repoError(err, apperror.ErrListNotFound)
	}
	return nil
}

// AddMembers добавляет контакты в список. Уже добавленные пропускаются.
func (s *MarketingService) AddMembers(ctx context.Context, listID uuid.UUID, contactIDs []uuid.UUID) (int, *models.MarketingList, error) {
	if len(contactIDs) == 0 {
		return 0, nil, apperror.Validation("contact_ids обязателен")
	}
	if _, err := s.GetList(ctx, listID); err != nil {
		return 0, nil, err
	}
	added, err := s.repo.AddMembers(ctx, listID, contactIDs)
	if err != nil {
		return 0, nil, repoError(err, apperror.ErrContactNotFound)
	}
	l, err := s.GetList(ctx, listID)
	if err != nil {
		return 0, nil, err
	}
	return added, l, nil
}

// RemoveMember удаляет контакт из списка.
func (s *MarketingService) RemoveMember(ctx context.Context, listID, contactID uuid.UUID) error {
	if _, err := s.GetList(ctx, listID); err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, listID, contactID); err != nil {
		return repoError(err, apperror.ErrContactNotFound)
	}
	return nil
}

// Members возвращает контакты списка.
func (s *MarketingService) Members(ctx context.Context, listID uuid.UUID) ([]models.Contact, error) {
	if _, err := s.GetList(ctx, listID); err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, listID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return members, nil
}

// CreateCampaign создаёт черновик кампании.
func (s *MarketingService) CreateCampaign(ctx context.Context, actor Actor, in CampaignInput) (*models.Campaign, error) {
	c := &models.Campaign{Status: models.CampaignStatusDraft}
	if err := s.applyCampaignInput(ctx, c, in); err != nil {
		return nil, err
	}
	if actor.UserID != uuid.Nil {
		createdBy := actor.UserID
		c.CreatedBy = &createdBy
	}
	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return nil, apperror.Internal(err)
	}
	return c, nil
}

// GetCampaign возвращает кампанию.
func (s *MarketingService) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, repoError(err, apperror.ErrCampaignNotFound)
	}
	return c, nil
}

// Campaigns возвращает все кампании.
func (s *MarketingService) Campaigns(ctx context.Context) ([]models.Campaign, error) {
	items, err := s.repo.ListCampaigns(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}

// UpdateCampaign изменяет кампанию, пока она не начала отправляться.
func (s *MarketingService) UpdateCampaign(ctx context.Context, id uuid.UUID, in CampaignInput) (*models.Campaign, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignStatusSending || c.Status == models.CampaignStatusSent {
		return nil, apperror.Conflict("отправленную кампанию нельзя изменить")
	}
	if err := s.applyCampaignInput(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		return nil, repoError(err, apperror.ErrCampaignNotFound)
	}
	return c, nil
}

// DeleteCampaign удаляет кампанию вместе с журналом доставки.
func (s *MarketingService) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignStatusSending {
		return apperror.Conflict("кампания отправляется")
	}
	if err := s.repo.DeleteCampaign(ctx, id); err != nil {
		return repoError(err, apperror.ErrCampaignNotFound)
	}
	return nil
}

// Schedule планирует отправку кампании на время в будущем.
func (s *MarketingService) Schedule(ctx context.Context, id uuid.UUID, at time.Time) (*models.Campaign, error) {
	if !at.After(s.now()) {
		return nil, apperror.Validation("время отправки должно быть в будущем")
	}
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignStatusSending || c.Status == models.CampaignStatusSent {
		return nil, apperror.Conflict("кампания уже отправлена")
	}
	if c.ListID == nil {
		return nil, apperror.Validation("у кампании не выбран список рассылки")
	}
	c.Status = models.CampaignStatusScheduled
	c.ScheduledAt = &at
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		return nil, repoError(err, apperror.ErrCampaignNotFound)
	}
	return c, nil
}

// Deliveries возвращает журнал доставки кампании.
func (s *MarketingService) Deliveries(ctx context.Context, id uuid.UUID) ([]models.CampaignDelivery, error) {
	if _, err := s.GetCampaign(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.repo.ListDeliveries(ctx, id)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}

// Send отправляет кампанию всем участникам списка.
func (s *MarketingService) Send(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CampaignStatusSending || c.Status == models.CampaignStatusSent {
		return nil, apperror.Conflict("кампания уже отправлена или отправляется")
	}
	if c.ListID == nil {
		return nil, apperror.Validation("у кампании не выбран список рассылки")
	}
	members, err := s.repo.ListMembers(ctx, *c.ListID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if len(members) == 0 {
		return nil, apperror.Validation("в списке рассылки нет контактов")
	}

	claimed, err := s.repo.ClaimCampaign(ctx, c.ID)
	if err != nil {
		return nil, repoError(err, apperror.ErrCampaignNotFound)
	}
	if !claimed {
		return nil, apperror.Conflict("кампания уже отправлена или отправляется")
	}
	c.Status = models.CampaignStatusSending

	deliveries := make([]models.CampaignDelivery, 0, len(members))
	for i := range members {
		deliveries = append(deliveries, s.deliver(ctx, c, &members[i]))
	}
	if err := s.repo.CreateDeliveries(ctx, deliveries); err != nil {
		logger.Log.WithFields(logrus.Fields{"campaign_id": c.ID, "error": err}).Error("marketing service: не удалось сохранить журнал доставки")
	}

	c.SentCount, c.FailedCount = 0, 0
	for _, d := range deliveries {
		switch d.Status {
		case models.DeliveryStatusSent:
			c.SentCount++
		case models.DeliveryStatusFailed:
			c.FailedCount++
		}
	}
	now := s.now()
	c.SentAt = &now
	c.Status = models.CampaignStatusSent
	if c.SentCount == 0 && c.FailedCount > 0 {
		c.Status = models.CampaignStatusFailed
	}
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		s.finishClaim(ctx, c)
		return nil, repoError(err, apperror.ErrCampaignNotFound)
	}

	logger.Log.WithFields(logrus.Fields{
		"campaign_id": c.ID,
		"channel":     c.Channel,
		"sent":        c.SentCount,
		"failed":      c.FailedCount,
		"skipped":     len(deliveries) - c.SentCount - c.FailedCount,
	}).Info("marketing service: кампания отправлена")
	return c, nil
}

// SendDue отправляет запланированные кампании, время которых наступило.
func (s *MarketingService) SendDue(ctx context.Context) (int, error) {
	due, err := s.repo.ListDueCampaigns(ctx, s.now())
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, c := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if _, err := s.Send(ctx, c.ID); err != nil {
			logger.Log.WithFields(logrus.Fields{"campaign_id": c.ID, "error": err}).Warn("marketing service: запланированная кампания не отправлена")
			s.markFailed(ctx, c.ID)
			continue
		}
		sent++
	}
	return sent, nil
}

// finishClaim повторяет запись итогового статуса, чтобы кампания не осталась в sending.
// Контекст запроса может быть уже отменён, поэтому запись идёт без отмены.
func (s *MarketingService) finishClaim(ctx context.Context, c *models.Campaign) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		logger.Log.WithFields(logrus.Fields{"campaign_id": c.ID, "status": c.Status, "error": err}).
			Error("marketing service: кампания осталась в статусе sending")
	}
}

// markFailed снимает кампанию с расписания, чтобы планировщик не повторял её бесконечно.
func (s *MarketingService) markFailed(ctx context.Context, id uuid.UUID) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil || c.Status != models.CampaignStatusScheduled {
		return
	}
	c.Status = models.CampaignStatusFailed
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		logger.Log.WithFields(logrus.Fields{"campaign_id": id, "error": err}).Warn("marketing service: не удалось обновить статус кампании")
	}
}

func (s *MarketingService) deliver(ctx context.Context, c *models.Campaign, contact *models.Contact) models.CampaignDelivery {
	d := models.CampaignDelivery{CampaignID: c.ID, ContactID: contact.ID}
	body := RenderPlaceholders(c.Content, contact)

	var err error
	switch c.Channel {
	case models.CampaignChannelEmail:
		if contact.Email == nil || strings.TrimSpace(*contact.Email) == "" {
			d.Status = models.DeliveryStatusSkipped
			return d
		}
		d.Recipient = *contact.Email
		subject := ""
		if c.Subject != nil {
			subject = RenderPlaceholders(*c.Subject, contact)
		}
		if s.email == nil {
			err = fmt.Errorf("отправка писем не настроена")
			break
		}
		err = s.email.SendEmail(ctx, messaging.Email{To: d.Recipient, Subject: subject, Text: body})
	case models.CampaignChannelWhatsApp:
		if contact.Phone == nil || strings.TrimSpace(*contact.Phone) == "" {
			d.Status = models.DeliveryStatusSkipped
			return d
		}
		d.Recipient = *contact.Phone
		if s.whatsapp == nil {
			err = fmt.Errorf("WhatsApp не настроен")
			break
		}
		err = s.whatsapp.SendWhatsApp(ctx, d.Recipient, body)
	default:
		err = fmt.Errorf("неизвестный канал %s", c.Channel)
	}

	if err != nil {
		msg := err.Error()
		d.Status = models.DeliveryStatusFailed
		d.Error = &msg
		return d
	}
	now := s.now()
	d.Status = models.DeliveryStatusSent
	d.SentAt = &now
	return d
}

// RenderPlaceholders подставляет данные контакта в шаблон сообщения.
func RenderPlaceholders(content string, c *models.Contact) string {
	deref := func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	}
	return strings.NewReplacer(
		"{{first_name}}", c.FirstName,
		"{{last_name}}", c.LastName,
		"{{company}}", deref(c.Company),
		"{{email}}", deref(c.Email),
	).Replace(content)
}

func applyListInput(l *models.MarketingList, in ListInput) error {
	name := strings.TrimSpace(in.Name)
	if err := validation.ValidateRequired("название списка", name, validation.MaxNameLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	desc := trimPtr(in.Description)
	if desc != nil {
		if err := validation.ValidateLength("описание", *desc, 0, validation.MaxNotesLength); err != nil {
			return apperror.Validation("%s", err.Error())
		}
	}
	l.Name = name
	l.Description = desc
	return nil
}

func (s *MarketingService) applyCampaignInput(ctx context.Context, c *models.Campaign, in CampaignInput) error {
	name := strings.TrimSpace(in.Name)
	if err := validation.ValidateRequired("название кампании", name, validation.MaxTitleLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	channel := strings.ToLower(strings.TrimSpace(in.Channel))
	if !models.IsValid(models.ValidCampaignChannels, channel) {
		return apperror.Validation("канал должен быть email или whatsapp")
	}
	subject := trimPtr(in.Subject)
	if channel == models.CampaignChannelEmail && subject == nil {
		return apperror.Validation("для email кампании нужна тема письма")
	}
	if subject != nil {
		if err := validation.ValidateLength("тема", *subject, 0, validation.MaxTitleLength); err != nil {
			return apperror.Validation("%s", err.Error())
		}
	}
	content := strings.TrimSpace(in.Content)
	if err := validation.ValidateRequired("текст кампании", content, maxCampaignContentLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	if in.ListID != nil {
		if _, err := s.GetList(ctx, *in.ListID); err != nil {
			return err
		}
	}

	c.Name = name
	c.Channel = channel
	c.Subject = subject
	c.Content = content
	c.ListID = in.ListID
	return nil
}
