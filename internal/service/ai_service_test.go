package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/ai"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
)

func newAITestService(t *testing.T, store *memory.Store, assistant Assistant) *AIService {
	t.Helper()
	var completer Completer
	if assistant != nil {
		completer = assistant
	}
	return NewAIService(AIServiceDeps{
		Chat:     store.Chat(),
		Reports:  newReportTestService(t, store, completer),
		Contacts: store.Contacts(),
		Deals:    store.Deals(),
		Settings: NewSettingsService(store.Settings(), nil, "USD"),
		AI:       assistant,
	})
}

func TestAIService_ChatStoresBothMessages(t *testing.T) {
	store := memory.NewStore()
	assistant := &fakeCompleter{available: true, answer: "У вас 1 лид"}
	svc := newAITestService(t, store, assistant)
	ctx := context.Background()
	actor := Actor{UserID: uuid.New(), Role: models.RoleAgent}
	require.NoError(t, store.Contacts().Create(ctx, &models.Contact{FirstName: "A", Status: models.ContactStatusLead}))

	reply, err := svc.Chat(ctx, actor, "  сколько лидов?  ")
	require.NoError(t, err)
	assert.Equal(t, "ai", reply.Source)
	assert.Equal(t, "У вас 1 лид", reply.Message.Content)
	assert.Equal(t, ai.RoleAssistant, reply.Message.Role)

	require.Len(t, assistant.prompts, 1)
	prompt := assistant.prompts[0]
	assert.Contains(t, prompt[0].Content, "lead 1")
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "сколько лидов?"}, prompt[len(prompt)-1])

	history, err := svc.History(ctx, actor.UserID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ai.RoleUser, history[0].Role)
	assert.Equal(t, ai.RoleAssistant, history[1].Role)
}

func TestAIService_ChatSendsRecentHistory(t *testing.T) {
	store := memory.NewStore()
	assistant := &fakeCompleter{available: true, answer: "ok"}
	svc := newAITestService(t, store, assistant)
	ctx := context.Background()
	actor := Actor{UserID: uuid.New(), Role: models.RoleAgent}

	for i := 0; i < 15; i++ {
		_, err := svc.Chat(ctx, actor, "вопрос")
		require.NoError(t, err)
	}

	last := assistant.prompts[len(assistant.prompts)-1]
	// системный промпт + 20 сообщений истории + вопрос
	assert.Len(t, last, 22)
}

func TestAIService_ChatFallback(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	actor := Actor{UserID: uuid.New(), Role: models.RoleAgent}

	for name, assistant := range map[string]Assistant{
		"nil":   nil,
		"error": &fakeCompleter{available: true, err: errors.New("502")},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newAITestService(t, store, assistant)
			reply, err := svc.Chat(ctx, actor, "привет")
			require.NoError(t, err)
			assert.Equal(t, "fallback", reply.Source)
			assert.Contains(t, reply.Message.Content, "AI-ассистент сейчас недоступен")
		})
	}
}

func TestAIService_ChatValidation(t *testing.T) {
	store := memory.NewStore()
	svc := newAITestService(t, store, nil)
	actor := Actor{UserID: uuid.New(), Role: models.RoleAgent}

	_, err := svc.Chat(context.Background(), actor, "   ")
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Chat(context.Background(), actor, strings.Repeat("я", 4001))
	assert.True(t, apperror.IsValidation(err))

	history, err := svc.History(context.Background(), actor.UserID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAIService_ChatStream(t *testing.T) {
	store := memory.NewStore()
	assistant := &fakeCompleter{available: true, chunks: []string{"Пер", "вый"}}
	svc := newAITestService(t, store, assistant)
	ctx := context.Background()
	actor := Actor{UserID: uuid.New(), Role: models.RoleAgent}

	var got []string
	reply, err := svc.ChatStream(ctx, actor, "вопрос", func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Пер", "вый"}, got)
	assert.Equal(t, "Первый", reply.Message.Content)
	assert.Equal(t, "ai", reply.Source)

	history, err := svc.History(ctx, actor.UserID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Первый", history[1].Content)
}

func TestAIService_ChatStreamFallsBackWithoutChunks(t *testing.T) {
	store := memory.NewStore()
	assistant := &fakeCompleter{available: true, err: errors.New("stream reset")}
	svc := newAITestService(t, store, assistant)

	var got []string
	reply, err := svc.ChatStream(context.Background(), Actor{UserID: uuid.New()}, "вопрос", func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fallback", reply.Source)
	assert.Equal(t, got[0], reply.Message.Content)
}

func TestAIService_ClearHistory(t *testing.T) {
	store := memory.NewStore()
	svc := newAITestService(t, store, nil)
	ctx := context.Background()
	actor := Actor{UserID: uuid.New()}

	_, err := svc.Chat(ctx, actor, "привет")
	require.NoError(t, err)
	require.NoError(t, svc.ClearHistory(ctx, actor.UserID))

	history, err := svc.History(ctx, actor.UserID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAIService_DraftProposal(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	company := "Acme"
	contact := &models.Contact{FirstName: "Анна", LastName: "Петрова", Company: &company, Status: models.ContactStatusLead}
	require.NoError(t, store.Contacts().Create(ctx, contact))
	deal := &models.Deal{Title: "Внедрение CRM", ContactID: &contact.ID, Value: 5000, Currency: "USD", Status: models.DealStatusOpen}
	require.NoError(t, store.Deals().Create(ctx, deal))

	assistant := &fakeCompleter{available: true, answer: `{"title":"КП","introduction":"Вступление","terms":"Условия"}`}
	svc := newAITestService(t, store, assistant)

	draft, err := svc.DraftProposal(ctx, ProposalDraftInput{DealID: &deal.ID})
	require.NoError(t, err)
	assert.Equal(t, &ai.ProposalDraft{Title: "КП", Introduction: "Вступление", Terms: "Условия"}, draft)

	prompt := assistant.prompts[0][1].Content
	assert.Contains(t, prompt, "Анна Петрова (Acme)")
	assert.Contains(t, prompt, "$5,000.00")
	assert.Contains(t, prompt, "My Company")
}

func TestAIService_DraftProposalErrors(t *testing.T) {
	store := memory.NewStore()
	svc := newAITestService(t, store, nil)
	ctx := context.Background()

	_, err := svc.DraftProposal(ctx, ProposalDraftInput{})
	assert.True(t, apperror.IsValidation(err))

	missing := uuid.New()
	_, err = svc.DraftProposal(ctx, ProposalDraftInput{DealID: &missing})
	assert.ErrorIs(t, err, apperror.ErrDealNotFound)

	_, err = svc.DraftProposal(ctx, ProposalDraftInput{ContactID: &missing})
	assert.ErrorIs(t, err, apperror.ErrContactNotFound)
}

func TestAIService_DraftProposalFallback(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	contact := &models.Contact{FirstName: "Олег", Status: models.ContactStatusLead}
	require.NoError(t, store.Contacts().Create(ctx, contact))
	svc := newAITestService(t, store, nil)

	draft, err := svc.DraftProposal(ctx, ProposalDraftInput{ContactID: &contact.ID})
	require.NoError(t, err)
	assert.Contains(t, draft.Introduction, "Здравствуйте, Олег!")
	assert.Contains(t, draft.Introduction, "My Company")
}

func TestAIService_DraftCampaign(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	svc := newAITestService(t, store, &fakeCompleter{available: true, answer: `{"subject":"Весна","content":"Скидки, {{first_name}}"}`})
	draft, err := svc.DraftCampaign(ctx, CampaignDraftInput{Goal: "весенняя распродажа"})
	require.NoError(t, err)
	assert.Equal(t, "Весна", draft.Subject)
	assert.Equal(t, "Скидки, {{first_name}}", draft.Content)

	_, err = svc.DraftCampaign(ctx, CampaignDraftInput{Goal: " "})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.DraftCampaign(ctx, CampaignDraftInput{Goal: "x", Channel: "sms"})
	assert.True(t, apperror.IsValidation(err))

	fallback := newAITestService(t, store, nil)
	wa, err := fallback.DraftCampaign(ctx, CampaignDraftInput{Goal: "Вебинар", Channel: models.CampaignChannelWhatsApp})
	require.NoError(t, err)
	assert.Empty(t, wa.Subject)
	assert.Contains(t, wa.Content, "Вебинар")
}
