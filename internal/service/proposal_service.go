package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/messaging"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pdf"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/pkg/money"
	"github.com/ignatzorin/crm-backend/internal/storage"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

const maxSignatureLength = 1 << 20

// ProposalRepository описывает хранилище коммерческих предложений.
type ProposalRepository interface {
	Create(ctx context.Context, p *models.Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	GetByToken(ctx context.Context, token string) (*models.Proposal, error)
	// Update сохраняет предложение вместе со строками.
	Update(ctx context.Context, p *models.Proposal) error
	// Save сохраняет только поля предложения.
	Save(ctx context.Context, p *models.Proposal) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f models.ProposalFilter) ([]models.Proposal, int, error)
	NextSequence(ctx context.Context, prefix string) (int, error)
}

// EmailSender отправляет письма.
type EmailSender interface {
	SendEmail(ctx context.Context, m messaging.Email) error
}

// PDFRenderer печатает HTML в PDF.
type PDFRenderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// ProposalItemInput строка предложения.
type ProposalItemInput struct {
	Description string
	Quantity    float64
	UnitPrice   float64
}

// ProposalInput данные создания и изменения предложения.
type ProposalInput struct {
	Title        string
	ContactID    *uuid.UUID
	DealID       *uuid.UUID
	Currency     string
	Items        []ProposalItemInput
	Discount     float64
	TaxRate      *float64
	ValidUntil   *time.Time
	Introduction *string
	Terms        *string
}

// SignInput данные подписи предложения клиентом.
type SignInput struct {
	SignerName    string
	SignerEmail   string
	SignatureData string
}

// PublicProposal то, что видит клиент по публичной ссылке.
type PublicProposal struct {
	Proposal *models.Proposal        `json:"proposal"`
	Company  *models.CompanySettings `json:"company"`
}

// ProposalServiceDeps зависимости ProposalService.
type ProposalServiceDeps struct {
	Proposals  ProposalRepository
	Contacts   ContactGetter
	Deals      DealGetter
	Activities ActivityCreator
	Settings   SettingsProvider
	Currency   CurrencyProvider
	Email      EmailSender
	Renderer   PDFRenderer
	Objects    storage.ObjectStorage
	Events     EventPublisher
	PublicURL  string
}

// ProposalService управляет жизненным циклом предложений.
type ProposalService struct {
	deps ProposalServiceDeps
	now  func() time.Time
}

// NewProposalService создаёт сервис предложений.
func NewProposalService(deps ProposalServiceDeps) *ProposalService {
	deps.PublicURL = strings.TrimRight(deps.PublicURL, "/")
	return &ProposalService{deps: deps, now: time.Now}
}

// CalculateTotals пересчитывает подытог и итог по строкам.
// Итог = (подытог - скидка) * (1 + налог/100), не меньше нуля.
func CalculateTotals(p *models.Proposal) {
	subtotal := 0.0
	for _, item := range p.Items {
		subtotal += item.Amount()
	}
	p.Subtotal = money.Round2(subtotal)
	total := (p.Subtotal - p.Discount) * (1 + p.TaxRate/100)
	if total < 0 {
		total = 0
	}
	p.Total = money.Round2(total)
}

// Create создаёт черновик с новым номером и публичным токеном.
func (s *ProposalService) Create(ctx context.Context, actor Actor, in ProposalInput) (*models.Proposal, error) {
	p := &models.Proposal{OwnerID: actor.UserID, Status: models.ProposalStatusDraft}
	if err := s.apply(ctx, p, in); err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("P-%d-", s.now().Year())
	seq, err := s.deps.Proposals.NextSequence(ctx, prefix)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	p.Number = fmt.Sprintf("%s%04d", prefix, seq)
	p.PublicToken = newPublicToken()

	if err := s.deps.Proposals.Create(ctx, p); err != nil {
		return nil, apperror.Internal(err)
	}
	return p, nil
}

// Get возвращает предложение со строками.
func (s *ProposalService) Get(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	p, err := s.deps.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, apperror.ErrProposalNotFound)
	}
	return p, nil
}

// List возвращает страницу предложений без строк.
func (s *ProposalService) List(ctx context.Context, f models.ProposalFilter) ([]models.Proposal, int, error) {
	if f.Status != "" && !models.IsValid(models.ValidProposalStatuses, f.Status) {
		return nil, 0, apperror.Validation("недопустимый статус предложения: %s", f.Status)
	}
	f.Limit = normalizeLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.deps.Proposals.List(ctx, f)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

// Update заменяет данные и строки предложения, итоги пересчитываются.
func (s *ProposalService) Update(ctx context.Context, id uuid.UUID, in ProposalInput) (*models.Proposal, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.deps.Proposals.Update(ctx, p); err != nil {
		return nil, repoError(err, apperror.ErrProposalNotFound)
	}
	return p, nil
}

// Delete удаляет предложение.
func (s *ProposalService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.deps.Proposals.Delete(ctx, id); err != nil {
		return repoError(err, apperror.ErrProposalNotFound)
	}
	return nil
}

// SetStatus выставляет любой статус из словаря.
func (s *ProposalService) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Proposal, error) {
	status = strings.TrimSpace(status)
	if !models.IsValid(models.ValidProposalStatuses, status) {
		return nil, apperror.Validation("недопустимый статус предложения: %s", status)
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	p.Status = status
	switch status {
	case models.ProposalStatusSent:
		if p.SentAt == nil {
			p.SentAt = &now
		}
	case models.ProposalStatusViewed:
		if p.ViewedAt == nil {
			p.ViewedAt = &now
		}
	}
	if err := s.deps.Proposals.Save(ctx, p); err != nil {
		return nil, repoError(err, apperror.ErrProposalNotFound)
	}
	return p, nil
}

// PublicLink ссылка на публичную страницу предложения.
func (s *ProposalService) PublicLink(p *models.Proposal) string {
	return s.deps.PublicURL + "/p/" + p.PublicToken
}

// Send отправляет клиенту письмо со ссылкой и помечает предложение отправленным.
func (s *ProposalService) Send(ctx context.Context, actor Actor, id uuid.UUID) (*models.Proposal, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ContactID == nil {
		return nil, apperror.Validation("у предложения не указан контакт")
	}
	contact, err := s.deps.Contacts.GetByID(ctx, *p.ContactID)
	if err != nil {
		return nil, repoError(err, apperror.ErrContactNotFound)
	}
	if contact.Email == nil || strings.TrimSpace(*contact.Email) == "" {
		return nil, apperror.Validation("у контакта нет email")
	}
	if s.deps.Email == nil {
		return nil, apperror.New(apperror.ErrCodeUnavailable, "отправка писем не настроена")
	}

	company := s.company(ctx)
	msg, err := messaging.NewProposalEmail(messaging.ProposalMessage{
		To:          *contact.Email,
		ContactName: contact.FullName(),
		CompanyName: company.CompanyName,
		Number:      p.Number,
		Title:       p.Title,
		Total:       money.Format(p.Total, p.Currency),
		Link:        s.PublicLink(p),
	})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if err := s.deps.Email.SendEmail(ctx, msg); err != nil {
		logger.Log.WithFields(logrus.Fields{"proposal_id": p.ID, "error": err}).Error("proposal service: письмо не отправлено")
		return nil, apperror.Wrap(err, apperror.ErrCodeUnavailable, "не удалось отправить письмо")
	}

	now := s.now()
	p.Status = models.ProposalStatusSent
	p.SentAt = &now
	if err := s.deps.Proposals.Save(ctx, p); err != nil {
		return nil, repoError(err, apperror.ErrProposalNotFound)
	}

	activity := &models.Activity{
		Type:      models.ActivityTypeEmail,
		Subject:   fmt.Sprintf("Отправлено предложение %s", p.Number),
		ContactID: p.ContactID,
		DealID:    p.DealID,
	}
	if actor.UserID != uuid.Nil {
		userID := actor.UserID
		activity.UserID = &userID
	}
	activity.CompletedAt = &now
	logSystemActivity(ctx, s.deps.Activities, activity)
	return p, nil
}

// PDF печатает предложение, сохраняет файл в хранилище и возвращает его содержимое.
func (s *ProposalService) PDF(ctx context.Context, id uuid.UUID) ([]byte, *models.Proposal, error) {
	if s.deps.Renderer == nil {
		return nil, nil, apperror.New(apperror.ErrCodeUnavailable, "генерация PDF недоступна")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	html, err := pdf.RenderProposalHTML(s.document(ctx, p))
	if err != nil {
		return nil, nil, apperror.Internal(err)
	}
	data, err := s.deps.Renderer.Render(ctx, html)
	if err != nil {
		if errors.Is(err, pdf.ErrUnavailable) {
			return nil, nil, apperror.Wrap(err, apperror.ErrCodeUnavailable, "генерация PDF недоступна")
		}
		return nil, nil, apperror.Internal(err)
	}

	if s.deps.Objects != nil {
		key := fmt.Sprintf("proposals/%s.pdf", p.ID)
		if _, err := s.deps.Objects.Put(ctx, key, "application/pdf", bytes.NewReader(data), int64(len(data))); err != nil {
			logger.Log.WithFields(logrus.Fields{"proposal_id": p.ID, "error": err}).Warn("proposal service: не удалось сохранить PDF")
		} else {
			p.PDFKey = &key
			if err := s.deps.Proposals.Save(ctx, p); err != nil {
				logger.Log.WithFields(logrus.Fields{"proposal_id": p.ID, "error": err}).Warn("proposal service: не удалось записать pdf_key")
			}
		}
	}
	return data, p, nil
}

// PublicView показывает предложение по токену. Первый просмотр отправленного
// предложения помечает его просмотренным, просроченное переводится в expired.
func (s *ProposalService) PublicView(ctx context.Context, token string) (*PublicProposal, error) {
	p, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	changed := s.expire(p)
	if p.Status == models.ProposalStatusSent {
		now := s.now()
		p.Status = models.ProposalStatusViewed
		p.ViewedAt = &now
		changed = true
	}
	if changed {
		if err := s.deps.Proposals.Save(ctx, p); err != nil {
			return nil, repoError(err, apperror.ErrProposalNotFound)
		}
	}
	return &PublicProposal{Proposal: p, Company: s.company(ctx)}, nil
}

// Sign принимает предложение от имени клиента.
func (s *ProposalService) Sign(ctx context.Context, token string, in SignInput) (*models.Proposal, error) {
	name := strings.TrimSpace(in.SignerName)
	if err := validation.ValidateRequired("имя подписанта", name, validation.MaxNameLength); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	email := strings.ToLower(strings.TrimSpace(in.SignerEmail))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	signature := strings.TrimSpace(in.SignatureData)
	if !strings.HasPrefix(signature, "data:image/") {
		return nil, apperror.Validation("подпись должна быть изображением в формате data URL")
	}
	if len(signature) > maxSignatureLength {
		return nil, apperror.Validation("подпись слишком большая")
	}

	p, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.expire(p) {
		if err := s.deps.Proposals.Save(ctx, p); err != nil {
			return nil, repoError(err, apperror.ErrProposalNotFound)
		}
	}
	if p.IsFinal() {
		return nil, apperror.Conflict(fmt.Sprintf("предложение уже в статусе %s", p.Status))
	}

	now := s.now()
	p.Status = models.ProposalStatusAccepted
	p.SignerName = &name
	p.SignerEmail = &email
	p.SignatureData = &signature
	p.SignedAt = &now
	if err := s.deps.Proposals.Save(ctx, p); err != nil {
		return nil, repoError(err, apperror.ErrProposalNotFound)
	}

	s.logClientDecision(ctx, p, fmt.Sprintf("Предложение %s подписано: %s <%s>", p.Number, name, email))
	s.notifyOwner(p, "proposal.signed", map[string]interface{}{
		"proposal_id": p.ID,
		"number":      p.Number,
		"signer_name": name,
		"total":       p.Total,
		"currency":    p.Currency,
	})
	return p, nil
}

// Reject отклоняет предложение от имени клиента.
func (s *ProposalService) Reject(ctx context.Context, token, reason string) (*models.Proposal, error) {
	reason = strings.TrimSpace(reason)
	if err := validation.ValidateLength("причина", reason, 0, validation.MaxMessageLength); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	p, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.expire(p) {
		if err := s.deps.Proposals.Save(ctx, p); err != nil {
			return nil, repoError(err, apperror.ErrProposalNotFound)
		}
	}
	if p.IsFinal() {
		return nil, apperror.Conflict(fmt.Sprintf("предложение уже в статусе %s", p.Status))
	}

	p.Status = models.ProposalStatusRejected
	if err := s.deps.Proposals.Save(ctx, p); err != nil {
		return nil, repoError(err, apperror.ErrProposalNotFound)
	}

	subject := fmt.Sprintf("Предложение %s отклонено клиентом", p.Number)
	if reason != "" {
		subject += ": " + reason
	}
	s.logClientDecision(ctx, p, subject)
	s.notifyOwner(p, "proposal.rejected", map[string]interface{}{
		"proposal_id": p.ID,
		"number":      p.Number,
		"reason":      reason,
	})
	return p, nil
}

func (s *ProposalService) byToken(ctx context.Context, token string) (*models.Proposal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.ErrProposalNotFound
	}
	p, err := s.deps.Proposals.GetByToken(ctx, token)
	if err != nil {
		return nil, repoError(err, apperror.ErrProposalNotFound)
	}
	return p, nil
}

// expire переводит предложение в expired, если срок действия прошёл.
// Срок действует до конца указанного дня.
func (s *ProposalService) expire(p *models.Proposal) bool {
	if p.ValidUntil == nil || p.IsFinal() {
		return false
	}
	y, m, d := p.ValidUntil.Date()
	deadline := time.Date(y, m, d, 23, 59, 59, 0, p.ValidUntil.Location())
	if !s.now().After(deadline) {
		return false
	}
	p.Status = models.ProposalStatusExpired
	return true
}

func (s *ProposalService) logClientDecision(ctx context.Context, p *models.Proposal, subject string) {
	owner := p.OwnerID
	a := &models.Activity{
		Type:      models.ActivityTypeNote,
		Subject:   subject,
		ContactID: p.ContactID,
		DealID:    p.DealID,
	}
	if owner != uuid.Nil {
		a.UserID = &owner
	}
	if a.ContactID == nil && a.DealID == nil {
		return
	}
	logSystemActivity(ctx, s.deps.Activities, a)
}

func (s *ProposalService) notifyOwner(p *models.Proposal, event string, payload map[string]interface{}) {
	if s.deps.Events == nil || p.OwnerID == uuid.Nil {
		return
	}
	if err := s.deps.Events.BroadcastToUser(p.OwnerID, event, payload); err != nil {
		logger.Log.WithFields(logrus.Fields{"proposal_id": p.ID, "event": event, "error": err}).Warn("proposal service: не удалось отправить событие")
	}
}

func (s *ProposalService) company(ctx context.Context) *models.CompanySettings {
	if s.deps.Settings != nil {
		if settings, err := s.deps.Settings.Get(ctx); err == nil && settings != nil {
			return settings
		}
	}
	return &models.CompanySettings{CompanyName: DefaultCompanyName, Currency: "USD", Timezone: "UTC"}
}

func (s *ProposalService) document(ctx context.Context, p *models.Proposal) pdf.ProposalDocument {
	company := s.company(ctx)
	deref := func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	}
	doc := pdf.ProposalDocument{
		CompanyName:    company.CompanyName,
		CompanyEmail:   deref(company.Email),
		CompanyPhone:   deref(company.Phone),
		CompanyAddress: deref(company.Address),
		CompanyWebsite: deref(company.Website),
		LogoURL:        deref(company.LogoURL),
		Number:         p.Number,
		Title:          p.Title,
		IssuedAt:       p.CreatedAt.Format("02.01.2006"),
		Introduction:   deref(p.Introduction),
		Terms:          deref(p.Terms),
		Subtotal:       money.Format(p.Subtotal, p.Currency),
		Total:          money.Format(p.Total, p.Currency),
		SignerName:     deref(p.SignerName),
	}
	if p.ValidUntil != nil {
		doc.ValidUntil = p.ValidUntil.Format("02.01.2006")
	}
	if p.SignedAt != nil {
		doc.SignedAt = p.SignedAt.Format("02.01.2006 15:04")
	}
	if p.Discount > 0 {
		doc.Discount = money.Format(p.Discount, p.Currency)
	}
	if p.TaxRate > 0 {
		doc.TaxRate = strconv.FormatFloat(p.TaxRate, 'f', -1, 64)
		doc.Tax = money.Format(p.Total-(p.Subtotal-p.Discount), p.Currency)
	}
	if p.ContactID != nil && s.deps.Contacts != nil {
		if c, err := s.deps.Contacts.GetByID(ctx, *p.ContactID); err == nil {
			doc.ClientName = c.FullName()
			doc.ClientEmail = deref(c.Email)
		}
	}
	for _, item := range p.Items {
		doc.Lines = append(doc.Lines, pdf.ProposalLine{
			Description: item.Description,
			Quantity:    strconv.FormatFloat(item.Quantity, 'f', -1, 64),
			UnitPrice:   money.Format(item.UnitPrice, p.Currency),
			Amount:      money.Format(item.Amount(), p.Currency),
		})
	}
	return doc
}

func (s *ProposalService) apply(ctx context.Context, p *models.Proposal, in ProposalInput) error {
	title := strings.TrimSpace(in.Title)
	if err := validation.ValidateRequired("название предложения", title, validation.MaxTitleLength); err != nil {
		return apperror.Validation("%s", err.Error())
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" && s.deps.Currency != nil {
		currency = s.deps.Currency.DefaultCurrency(ctx)
	}
	if !money.IsValidCurrency(currency) {
		return apperror.Validation("валюта должна быть кодом ISO-4217")
	}

	if in.Discount < 0 {
		return apperror.Validation("скидка не может быть отрицательной")
	}
	taxRate := 0.0
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	} else if s.deps.Settings != nil {
		taxRate = s.company(ctx).TaxRate
	}
	if taxRate < 0 || taxRate > 100 {
		return apperror.Validation("ставка налога должна быть от 0 до 100")
	}

	items := make([]models.ProposalItem, 0, len(in.Items))
	for i, item := range in.Items {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			return apperror.Validation("строка %d: описание обязательно", i+1)
		}
		if item.Quantity <= 0 {
			return apperror.Validation("строка %d: количество должно быть больше нуля", i+1)
		}
		if item.UnitPrice < 0 {
			return apperror.Validation("строка %d: цена не может быть отрицательной", i+1)
		}
		items = append(items, models.ProposalItem{
			Description: desc,
			Quantity:    item.Quantity,
			UnitPrice:   money.Round2(item.UnitPrice),
			Position:    i,
		})
	}

	intro := trimPtr(in.Introduction)
	terms := trimPtr(in.Terms)
	for _, text := range []struct {
		name  string
		value *string
	}{{"вступление", intro}, {"условия", terms}} {
		if text.value == nil {
			continue
		}
		if err := validation.ValidateLength(text.name, *text.value, 0, validation.MaxNotesLength); err != nil {
			return apperror.Validation("%s", err.Error())
		}
	}

	if in.ContactID != nil {
		if _, err := s.deps.Contacts.GetByID(ctx, *in.ContactID); err != nil {
			return repoError(err, apperror.ErrContactNotFound)
		}
	}
	if in.DealID != nil {
		if _, err := s.deps.Deals.GetByID(ctx, *in.DealID); err != nil {
			return repoError(err, apperror.ErrDealNotFound)
		}
	}

	p.Title = title
	p.ContactID = in.ContactID
	p.DealID = in.DealID
	p.Currency = currency
	p.Discount = money.Round2(in.Discount)
	p.TaxRate = taxRate
	p.ValidUntil = in.ValidUntil
	p.Introduction = intro
	p.Terms = terms
	p.Items = items
	CalculateTotals(p)
	return nil
}

func newPublicToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
