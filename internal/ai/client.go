package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaydesk/wabridge/pkg/logging"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// DefaultModel is used when the admin system does not specify one.
const DefaultModel = "gpt-4o-mini"

// ChatMessage is a single conversational turn in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// Completer produces an automated reply for a single inbound message.
type Completer interface {
	Complete(ctx context.Context, settings Settings, userText string) (string, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a completion client against the given provider base URL.
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Complete requests a completion with the inbound text as the sole user turn.
func (c *Client) Complete(ctx context.Context, settings Settings, userText string) (string, error) {
	if !settings.Enabled() {
		return "", fmt.Errorf("ai: no provider key configured")
	}

	model := settings.Model
	if model == "" {
		model = DefaultModel
	}

	var messages []ChatMessage
	if settings.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: settings.SystemPrompt})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: userText})

	body, err := json.Marshal(completionRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("ai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+settings.ProviderKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("ai: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("ai: provider returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
