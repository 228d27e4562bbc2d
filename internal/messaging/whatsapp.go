package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
)

// WhatsAppClient отправляет текстовые сообщения через HTTP API провайдера.
// Без адреса API сообщения только логируются.
type WhatsAppClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewWhatsAppClient создаёт клиента WhatsApp API.
func NewWhatsAppClient(baseURL, token string) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured сообщает, задан ли адрес API.
func (c *WhatsAppClient) Configured() bool {
	return c.baseURL != ""
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppMessage struct {
	To   string       `json:"to"`
	Type string       `json:"type"`
	Text whatsAppText `json:"text"`
}

// SendWhatsApp отправляет сообщение на номер телефона.
func (c *WhatsAppClient) SendWhatsApp(ctx context.Context, phone, text string) error {
	phone = normalizePhone(phone)
	if phone == "" {
		return ErrNoRecipient
	}
	if !c.Configured() {
		logger.Log.WithFields(logrus.Fields{"to": phone}).Info("messaging: WhatsApp API не настроен, сообщение не отправлено")
		return nil
	}

	body, err := json.Marshal(whatsAppMessage{To: phone, Type: "text", Text: whatsAppText{Body: text}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("messaging: whatsapp: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("messaging: whatsapp: код ответа %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// normalizePhone оставляет цифры и ведущий плюс.
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.Trim(out, "+") == "" {
		return ""
	}
	return out
}
