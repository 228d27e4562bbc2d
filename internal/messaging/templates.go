package messaging

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// ProposalMessage данные письма со ссылкой на предложение.
type ProposalMessage struct {
	To          string
	ContactName string
	CompanyName string
	Number      string
	Title       string
	Total       string
	Link        string
}

var proposalEmailTemplate = template.Must(template.New("proposal_email").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #222;">
<p>{{if .ContactName}}{{.ContactName}}, здравствуйте!{{else}}Здравствуйте!{{end}}</p>
<p>{{.CompanyName}} подготовили для вас коммерческое предложение <strong>{{.Number}}</strong> «{{.Title}}» на сумму {{.Total}}.</p>
<p><a href="{{.Link}}" style="display:inline-block;padding:10px 20px;background:#1f5fbf;color:#fff;text-decoration:none;border-radius:4px;">Открыть предложение</a></p>
<p style="color:#666;">Ссылка: {{.Link}}</p>
</body></html>`))

// NewProposalEmail собирает письмо со ссылкой на публичную страницу предложения.
func NewProposalEmail(m ProposalMessage) (Email, error) {
	var html bytes.Buffer
	if err := proposalEmailTemplate.Execute(&html, m); err != nil {
		return Email{}, fmt.Errorf("messaging: шаблон письма: %w", err)
	}

	var text strings.Builder
	if m.ContactName != "" {
		fmt.Fprintf(&text, "%s, здравствуйте!\n\n", m.ContactName)
	} else {
		text.WriteString("Здравствуйте!\n\n")
	}
	fmt.Fprintf(&text, "%s подготовили для вас коммерческое предложение %s «%s» на сумму %s.\n\n", m.CompanyName, m.Number, m.Title, m.Total)
	fmt.Fprintf(&text, "Открыть предложение: %s\n", m.Link)

	return Email{
		To:      m.To,
		Subject: fmt.Sprintf("Коммерческое предложение %s от %s", m.Number, m.CompanyName),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
