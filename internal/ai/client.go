// Package ai реализует клиента OpenAI-совместимого API (по умолчанию xAI Grok)
// и промпты CRM-ассистента.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrUnavailable возвращается, когда ключ API не задан.
var ErrUnavailable = errors.New("ai: провайдер не настроен")

// Роли сообщений диалога.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message сообщение диалога в формате chat/completions.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client вызывает chat/completions.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(baseURL, apiKey, model string) *Client {
	if model == "" {
		model = "grok-3-mini"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Available сообщает, можно ли обращаться к провайдеру.
func (c *Client) Available() bool {
	return c != nil && c.apiKey != "" && c.baseURL != ""
}

// Complete возвращает полный ответ модели.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	resp, err := c.do(ctx, messages, maxTokens, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("ai: пустой ответ")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// Stream запрашивает ответ с stream=true и передаёт текстовые чанки в onDelta.
func (c *Client) Stream(ctx context.Context, messages []Message, maxTokens int, onDelta func(chunk string) error) error {
	resp, err := c.do(ctx, messages, maxTokens, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return nil
			}
			if chunk := parseDelta(data); chunk != "" {
				if cbErr := onDelta(chunk); cbErr != nil {
					return cbErr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("ai: read stream: %w", err)
		}
	}
}

func (c *Client) do(ctx context.Context, messages []Message, maxTokens int, stream bool) (*http.Response, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": 0.7,
		"stream":      stream,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai: request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return nil, fmt.Errorf("ai: код ответа %d: %v", resp.StatusCode, errorBody)
	}
	return resp, nil
}

// parseDelta извлекает choices[0].delta.content из события потока.
func parseDelta(data string) string {
	var event struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil || len(event.Choices) == 0 {
		return ""
	}
	text := event.Choices[0].Delta.Content
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return text
}
