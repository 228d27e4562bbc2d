package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/money"
)

const systemPrompt = "Ты ассистент отдела продаж в CRM. Отвечай кратко и по делу, на языке вопроса. " +
	"Опирайся только на данные CRM из контекста, не выдумывай цифры."

// Snapshot компактный срез данных CRM для промпта.
type Snapshot struct {
	ContactsByStatus  map[string]int
	DealsByStatus     map[string]int
	OpenValue         map[string]float64
	TopDeals          []models.Deal
	ActivitiesDue     int
	ActivitiesOverdue int
}

// String форматирует срез для модели.
func (s Snapshot) String() string {
	var b strings.Builder
	b.WriteString("Контакты по статусам: " + formatCounts(s.ContactsByStatus) + "\n")
	b.WriteString("Сделки по статусам: " + formatCounts(s.DealsByStatus) + "\n")
	b.WriteString("Открытая воронка: " + formatAmounts(s.OpenValue) + "\n")
	fmt.Fprintf(&b, "Задачи на неделю: %d, просрочено: %d\n", s.ActivitiesDue, s.ActivitiesOverdue)
	if len(s.TopDeals) > 0 {
		b.WriteString("Крупнейшие открытые сделки:\n")
		for _, d := range s.TopDeals {
			fmt.Fprintf(&b, "- %s: %s\n", d.Title, money.Format(d.Value, d.Currency))
		}
	}
	return b.String()
}

// ChatMessages собирает диалог: системный промпт, срез CRM, история и вопрос.
func ChatMessages(snapshot Snapshot, history []models.ChatMessage, question string) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{
		Role:    RoleSystem,
		Content: systemPrompt + "\n\nДанные CRM:\n" + snapshot.String(),
	})
	for _, m := range history {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}
	return append(messages, Message{Role: RoleUser, Content: question})
}

// FallbackChatAnswer ответ без обращения к модели.
func FallbackChatAnswer(snapshot Snapshot) string {
	return "AI-ассистент сейчас недоступен. Краткая сводка по CRM:\n" + snapshot.String()
}

// ReportMessages промпт для аналитического отчёта по воронке.
func ReportMessages(r models.PipelineReport) []Message {
	var b strings.Builder
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "- %s (%d%%): %d сделок, %s\n", s.Name, s.Probability, s.Count, formatAmounts(s.Value))
	}
	fmt.Fprintf(&b, "Всего сделок: %d, открыто: %d, выиграно: %d, проиграно: %d\n",
		r.TotalDeals, r.OpenDeals, r.WonDeals, r.LostDeals)
	fmt.Fprintf(&b, "Конверсия: %.1f%%, средний размер сделки: %s\n", r.ConversionRate, formatAmounts(r.AverageDealSize))

	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: "Проанализируй воронку продаж. Выдели узкие места и дай три конкретные рекомендации.\n\n" + b.String()},
	}
}

// FallbackReport детерминированная сводка по воронке.
func FallbackReport(r models.PipelineReport) string {
	if r.TotalDeals == 0 {
		return "В воронке пока нет сделок. Добавьте сделки, чтобы получить аналитику."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "В воронке %d сделок: открыто %d, выиграно %d, проиграно %d. ",
		r.TotalDeals, r.OpenDeals, r.WonDeals, r.LostDeals)
	fmt.Fprintf(&b, "Конверсия закрытых сделок %.1f%%. ", r.ConversionRate)

	var busiest *models.StageReport
	for i := range r.Stages {
		s := &r.Stages[i]
		if s.IsWon || s.IsLost {
			continue
		}
		if busiest == nil || s.Count > busiest.Count {
			busiest = s
		}
	}
	if busiest != nil && busiest.Count > 0 {
		fmt.Fprintf(&b, "Больше всего сделок на этапе «%s» (%d). ", busiest.Name, busiest.Count)
	}
	if avg := formatAmounts(r.AverageDealSize); avg != "нет" {
		b.WriteString("Средний размер сделки: " + avg + ".")
	}
	return strings.TrimSpace(b.String())
}

// ProposalDraftRequest исходные данные для черновика предложения.
type ProposalDraftRequest struct {
	CompanyName string
	ContactName string
	ContactCo   string
	DealTitle   string
	DealValue   string
	Notes       string
}

// ProposalDraft сгенерированные вступление и условия.
type ProposalDraft struct {
	Title        string `json:"title"`
	Introduction string `json:"introduction"`
	Terms        string `json:"terms"`
}

// ProposalDraftMessages промпт черновика коммерческого предложения.
func ProposalDraftMessages(r ProposalDraftRequest) []Message {
	prompt := fmt.Sprintf(`Подготовь черновик коммерческого предложения.
Компания-отправитель: %s
Клиент: %s %s
Сделка: %s
Сумма: %s
Пожелания: %s

Ответь JSON-объектом с полями "title", "introduction" (2-3 абзаца) и "terms" (условия оплаты и сроки).`,
		r.CompanyName, r.ContactName, r.ContactCo, r.DealTitle, r.DealValue, r.Notes)

	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: prompt},
	}
}

// ParseProposalDraft разбирает ответ модели; пустые поля берутся из fallback.
func ParseProposalDraft(text string, r ProposalDraftRequest) ProposalDraft {
	draft := FallbackProposalDraft(r)
	var parsed ProposalDraft
	if parseJSONFromText(text, &parsed) {
		if parsed.Title != "" {
			draft.Title = parsed.Title
		}
		if parsed.Introduction != "" {
			draft.Introduction = parsed.Introduction
		}
		if parsed.Terms != "" {
			draft.Terms = parsed.Terms
		}
	} else if t := strings.TrimSpace(text); t != "" {
		draft.Introduction = t
	}
	return draft
}

// FallbackProposalDraft шаблонный черновик.
func FallbackProposalDraft(r ProposalDraftRequest) ProposalDraft {
	title := "Коммерческое предложение"
	if r.DealTitle != "" {
		title += ": " + r.DealTitle
	}
	greeting := "Здравствуйте!"
	if r.ContactName != "" {
		greeting = fmt.Sprintf("Здравствуйте, %s!", r.ContactName)
	}
	company := r.CompanyName
	if company == "" {
		company = "Наша компания"
	}
	return ProposalDraft{
		Title: title,
		Introduction: fmt.Sprintf("%s\n\n%s благодарит вас за интерес. Ниже приведены позиции и стоимость работ. "+
			"Будем рады ответить на вопросы и скорректировать предложение под ваши задачи.", greeting, company),
		Terms: "Оплата: 50% предоплата, 50% по завершении работ. Предложение действительно 30 дней.",
	}
}

// CampaignDraftRequest исходные данные для черновика рассылки.
type CampaignDraftRequest struct {
	CompanyName string
	Goal        string
	Channel     string
	Audience    string
}

// CampaignDraft сгенерированные тема и текст.
type CampaignDraft struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// CampaignDraftMessages промпт черновика маркетинговой рассылки.
func CampaignDraftMessages(r CampaignDraftRequest) []Message {
	limit := "до 150 слов"
	if r.Channel == models.CampaignChannelWhatsApp {
		limit = "до 60 слов, без HTML"
	}
	prompt := fmt.Sprintf(`Напиши текст маркетинговой рассылки.
Компания: %s
Цель: %s
Канал: %s
Аудитория: %s
Объём: %s. Можно использовать подстановки {{first_name}} и {{company}}.

Ответь JSON-объектом с полями "subject" и "content".`,
		r.CompanyName, r.Goal, r.Channel, r.Audience, limit)

	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: prompt},
	}
}

// ParseCampaignDraft разбирает ответ модели; пустые поля берутся из fallback.
func ParseCampaignDraft(text string, r CampaignDraftRequest) CampaignDraft {
	draft := FallbackCampaignDraft(r)
	var parsed CampaignDraft
	if parseJSONFromText(text, &parsed) {
		if parsed.Subject != "" {
			draft.Subject = parsed.Subject
		}
		if parsed.Content != "" {
			draft.Content = parsed.Content
		}
	} else if t := strings.TrimSpace(text); t != "" {
		draft.Content = t
	}
	if r.Channel == models.CampaignChannelWhatsApp {
		draft.Subject = ""
	}
	return draft
}

// FallbackCampaignDraft шаблонный черновик рассылки.
func FallbackCampaignDraft(r CampaignDraftRequest) CampaignDraft {
	company := r.CompanyName
	if company == "" {
		company = "Наша компания"
	}
	goal := strings.TrimSpace(r.Goal)
	draft := CampaignDraft{
		Subject: fmt.Sprintf("%s: %s", company, goal),
		Content: fmt.Sprintf("Здравствуйте, {{first_name}}!\n\n%s. Ответьте на это сообщение, и мы расскажем подробности.\n\n%s",
			goal, company),
	}
	if r.Channel == models.CampaignChannelWhatsApp {
		draft.Subject = ""
	}
	return draft
}

var codeBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseJSONFromText извлекает JSON-объект из текста, который может содержать markdown.
func parseJSONFromText(text string, dest interface{}) bool {
	if m := codeBlockRe.FindStringSubmatch(text); len(m) > 1 {
		if err := json.Unmarshal([]byte(m[1]), dest); err == nil {
			return true
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), dest); err == nil {
			return true
		}
	}
	return false
}

func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "нет"
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s %d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

func formatAmounts(m map[string]float64) string {
	if len(m) == 0 {
		return "нет"
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, money.Format(m[k], k))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
