package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/ai"
	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/pkg/money"
	"github.com/ignatzorin/crm-backend/internal/validation"
)

const (
	chatHistoryWindow = 20
	chatHistoryPage   = 100
)

// ChatRepository хранит историю диалога с ассистентом.
type ChatRepository interface {
	Add(ctx context.Context, m *models.ChatMessage) error
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Assistant языковая модель с потоковым режимом.
type Assistant interface {
	Completer
	Stream(ctx context.Context, messages []ai.Message, maxTokens int, onDelta func(chunk string) error) error
}

// ProposalDraftInput параметры черновика предложения.
type ProposalDraftInput struct {
	DealID    *uuid.UUID
	ContactID *uuid.UUID
	Notes     string
}

// CampaignDraftInput параметры черновика рассылки.
type CampaignDraftInput struct {
	Goal     string
	Channel  string
	Audience string
}

// ChatReply ответ ассистента.
type ChatReply struct {
	Message models.ChatMessage `json:"message"`
	Source  string             `json:"source"`
}

// AIServiceDeps зависимости AIService.
type AIServiceDeps struct {
	Chat     ChatRepository
	Reports  *ReportService
	Contacts ContactGetter
	Deals    DealGetter
	Settings SettingsProvider
	AI       Assistant
}

// AIService реализует чат с ассистентом и генерацию черновиков.
type AIService struct {
	deps AIServiceDeps
}

// NewAIService создаёт сервис ассистента.
func NewAIService(deps AIServiceDeps) *AIService {
	return &AIService{deps: deps}
}

func (s *AIService) available() bool {
	return s.deps.AI != nil && s.deps.AI.Available()
}

// Chat отвечает на вопрос пользователя и сохраняет обе реплики.
func (s *AIService) Chat(ctx context.Context, actor Actor, message string) (*ChatReply, error) {
	prompt, err := s.prepare(ctx, actor, message)
	if err != nil {
		return nil, err
	}

	source := "fallback"
	answer := ""
	if s.available() {
		answer, err = s.deps.AI.Complete(ctx, prompt.messages, 1024)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"user_id": actor.UserID, "error": err}).Warn("ai service: ответ модели не получен")
			answer = ""
		} else {
			source = "ai"
		}
	}
	if answer == "" {
		answer, source = ai.FallbackChatAnswer(prompt.snapshot), "fallback"
	}

	reply, err := s.store(ctx, actor.UserID, ai.RoleAssistant, answer)
	if err != nil {
		return nil, err
	}
	return &ChatReply{Message: *reply, Source: source}, nil
}

// ChatStream отдаёт ответ частями через onChunk и сохраняет итоговый текст.
func (s *AIService) ChatStream(ctx context.Context, actor Actor, message string, onChunk func(string) error) (*ChatReply, error) {
	prompt, err := s.prepare(ctx, actor, message)
	if err != nil {
		return nil, err
	}

	var full strings.Builder
	source := "fallback"
	if s.available() {
		err = s.deps.AI.Stream(ctx, prompt.messages, 1024, func(chunk string) error {
			full.WriteString(chunk)
			return onChunk(chunk)
		})
		switch {
		case err != nil && full.Len() == 0:
			logger.Log.WithFields(logrus.Fields{"user_id": actor.UserID, "error": err}).Warn("ai service: поток модели не получен")
		case err != nil:
			logger.Log.WithFields(logrus.Fields{"user_id": actor.UserID, "error": err}).Warn("ai service: поток прерван")
			source = "ai"
		default:
			source = "ai"
		}
	}
	if full.Len() == 0 {
		text := ai.FallbackChatAnswer(prompt.snapshot)
		full.WriteString(text)
		source = "fallback"
		if err := onChunk(text); err != nil {
			logger.Log.WithError(err).Debug("ai service: клиент отключился")
		}
	}

	reply, err := s.store(context.WithoutCancel(ctx), actor.UserID, ai.RoleAssistant, full.String())
	if err != nil {
		return nil, err
	}
	return &ChatReply{Message: *reply, Source: source}, nil
}

type chatPrompt struct {
	snapshot ai.Snapshot
	messages []ai.Message
}

// prepare проверяет вопрос, собирает промпт и сохраняет реплику пользователя.
func (s *AIService) prepare(ctx context.Context, actor Actor, message string) (*chatPrompt, error) {
	message = strings.TrimSpace(message)
	if err := validation.ValidateMessageContent(message); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}

	history, err := s.deps.Chat.Recent(ctx, actor.UserID, chatHistoryWindow)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	snapshot := s.deps.Reports.snapshot(ctx)

	if _, err := s.store(ctx, actor.UserID, ai.RoleUser, message); err != nil {
		return nil, err
	}
	return &chatPrompt{
		snapshot: snapshot,
		messages: ai.ChatMessages(snapshot, history, message),
	}, nil
}

func (s *AIService) store(ctx context.Context, userID uuid.UUID, role, content string) (*models.ChatMessage, error) {
	m := &models.ChatMessage{UserID: userID.String(), Role: role, Content: content}
	if err := s.deps.Chat.Add(ctx, m); err != nil {
		return nil, apperror.Internal(err)
	}
	return m, nil
}

// History возвращает историю диалога пользователя.
func (s *AIService) History(ctx context.Context, userID uuid.UUID) ([]models.ChatMessage, error) {
	items, err := s.deps.Chat.Recent(ctx, userID, chatHistoryPage)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}

// ClearHistory удаляет историю диалога пользователя.
func (s *AIService) ClearHistory(ctx context.Context, userID uuid.UUID) error {
	if err := s.deps.Chat.Clear(ctx, userID); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// DraftProposal генерирует вступление и условия для предложения по сделке или контакту.
func (s *AIService) DraftProposal(ctx context.Context, in ProposalDraftInput) (*ai.ProposalDraft, error) {
	if in.DealID == nil && in.ContactID == nil {
		return nil, apperror.Validation("укажите deal_id или contact_id")
	}
	if err := validation.ValidateLength("пожелания", in.Notes, 0, validation.MaxNotesLength); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}

	req := ai.ProposalDraftRequest{Notes: strings.TrimSpace(in.Notes)}
	contactID := in.ContactID
	if in.DealID != nil {
		deal, err := s.deps.Deals.GetByID(ctx, *in.DealID)
		if err != nil {
			return nil, repoError(err, apperror.ErrDealNotFound)
		}
		req.DealTitle = deal.Title
		req.DealValue = money.Format(deal.Value, deal.Currency)
		if contactID == nil {
			contactID = deal.ContactID
		}
	}
	if contactID != nil {
		contact, err := s.deps.Contacts.GetByID(ctx, *contactID)
		if err != nil {
			return nil, repoError(err, apperror.ErrContactNotFound)
		}
		req.ContactName = strings.TrimSpace(contact.FirstName + " " + contact.LastName)
		if contact.Company != nil {
			req.ContactCo = "(" + *contact.Company + ")"
		}
	}
	req.CompanyName = s.companyName(ctx)

	if s.available() {
		text, err := s.deps.AI.Complete(ctx, ai.ProposalDraftMessages(req), 1200)
		if err == nil {
			draft := ai.ParseProposalDraft(text, req)
			return &draft, nil
		}
		logger.Log.WithError(err).Warn("ai service: черновик предложения по шаблону")
	}
	draft := ai.FallbackProposalDraft(req)
	return &draft, nil
}

// DraftCampaign генерирует тему и текст рассылки под цель и канал.
func (s *AIService) DraftCampaign(ctx context.Context, in CampaignDraftInput) (*ai.CampaignDraft, error) {
	goal := strings.TrimSpace(in.Goal)
	if err := validation.ValidateRequired("цель", goal, validation.MaxTitleLength*5); err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}
	channel := in.Channel
	if channel == "" {
		channel = models.CampaignChannelEmail
	}
	if !models.IsValid(models.ValidCampaignChannels, channel) {
		return nil, apperror.Validation("недопустимый канал: %s", channel)
	}

	req := ai.CampaignDraftRequest{
		CompanyName: s.companyName(ctx),
		Goal:        goal,
		Channel:     channel,
		Audience:    strings.TrimSpace(in.Audience),
	}
	if s.available() {
		text, err := s.deps.AI.Complete(ctx, ai.CampaignDraftMessages(req), 800)
		if err == nil {
			draft := ai.ParseCampaignDraft(text, req)
			return &draft, nil
		}
		logger.Log.WithError(err).Warn("ai service: черновик рассылки по шаблону")
	}
	draft := ai.FallbackCampaignDraft(req)
	return &draft, nil
}

func (s *AIService) companyName(ctx context.Context) string {
	if s.deps.Settings == nil {
		return DefaultCompanyName
	}
	settings, err := s.deps.Settings.Get(ctx)
	if err != nil || settings == nil || settings.CompanyName == "" {
		return DefaultCompanyName
	}
	return settings.CompanyName
}
