package pdf

import (
	"bytes"
	"fmt"
	"html/template"
)

// ProposalLine строка предложения с уже отформатированными суммами.
type ProposalLine struct {
	Description string
	Quantity    string
	UnitPrice   string
	Amount      string
}

// ProposalDocument данные печатной формы предложения.
type ProposalDocument struct {
	CompanyName    string
	CompanyEmail   string
	CompanyPhone   string
	CompanyAddress string
	CompanyWebsite string
	LogoURL        string

	Number       string
	Title        string
	IssuedAt     string
	ValidUntil   string
	ClientName   string
	ClientEmail  string
	Introduction string
	Terms        string

	Lines    []ProposalLine
	Subtotal string
	Discount string
	TaxRate  string
	Tax      string
	Total    string

	SignerName string
	SignedAt   string
}

var proposalTemplate = template.Must(template.New("proposal").Parse(proposalHTML))

// RenderProposalHTML собирает HTML документа предложения.
func RenderProposalHTML(doc ProposalDocument) (string, error) {
	var buf bytes.Buffer
	if err := proposalTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("pdf: шаблон предложения: %w", err)
	}
	return buf.String(), nil
}

const proposalHTML = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="UTF-8">
<title>{{.Number}} {{.Title}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; color: #222; font-size: 12px; margin: 0; }
  header { display: flex; justify-content: space-between; border-bottom: 2px solid #1f5fbf; padding-bottom: 12px; margin-bottom: 20px; }
  header img { max-height: 48px; }
  h1 { font-size: 20px; margin: 0 0 4px; }
  .muted { color: #666; }
  table { width: 100%; border-collapse: collapse; margin: 16px 0; }
  th, td { padding: 6px 8px; border-bottom: 1px solid #ddd; text-align: left; }
  td.num, th.num { text-align: right; }
  .totals { width: 40%; margin-left: auto; }
  .totals td { border: none; }
  .total td { font-weight: bold; font-size: 14px; border-top: 2px solid #222; }
  .signature { margin-top: 32px; padding-top: 8px; border-top: 1px dashed #999; }
</style>
</head>
<body>
<header>
  <div>
    {{if .LogoURL}}<img src="{{.LogoURL}}" alt="{{.CompanyName}}">{{end}}
    <h1>{{.CompanyName}}</h1>
    <div class="muted">
      {{if .CompanyAddress}}{{.CompanyAddress}}<br>{{end}}
      {{if .CompanyEmail}}{{.CompanyEmail}}{{end}} {{if .CompanyPhone}}{{.CompanyPhone}}{{end}}<br>
      {{if .CompanyWebsite}}{{.CompanyWebsite}}{{end}}
    </div>
  </div>
  <div>
    <h1>{{.Number}}</h1>
    <div class="muted">Дата: {{.IssuedAt}}</div>
    {{if .ValidUntil}}<div class="muted">Действительно до: {{.ValidUntil}}</div>{{end}}
  </div>
</header>

<h2>{{.Title}}</h2>
{{if .ClientName}}<p>Клиент: <strong>{{.ClientName}}</strong>{{if .ClientEmail}} ({{.ClientEmail}}){{end}}</p>{{end}}
{{if .Introduction}}<p>{{.Introduction}}</p>{{end}}

<table>
  <thead>
    <tr><th>Описание</th><th class="num">Кол-во</th><th class="num">Цена</th><th class="num">Сумма</th></tr>
  </thead>
  <tbody>
  {{range .Lines}}
    <tr><td>{{.Description}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.Amount}}</td></tr>
  {{end}}
  </tbody>
</table>

<table class="totals">
  <tr><td>Подытог</td><td class="num">{{.Subtotal}}</td></tr>
  {{if .Discount}}<tr><td>Скидка</td><td class="num">-{{.Discount}}</td></tr>{{end}}
  {{if .Tax}}<tr><td>Налог {{.TaxRate}}%</td><td class="num">{{.Tax}}</td></tr>{{end}}
  <tr class="total"><td>Итого</td><td class="num">{{.Total}}</td></tr>
</table>

{{if .Terms}}<h3>Условия</h3><p>{{.Terms}}</p>{{end}}

{{if .SignerName}}
<div class="signature">Подписано: {{.SignerName}}, {{.SignedAt}}</div>
{{end}}
</body>
</html>`
