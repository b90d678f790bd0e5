package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/relaydesk/wabridge/internal/ai"
	"github.com/relaydesk/wabridge/pkg/logging"
)

// Message directions as logged by the admin system.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// LinkageFunc returns the current admin base URL and shared API key. Both may
// be empty until the control API adopts a linkage.
type LinkageFunc func() (baseURL, apiKey string)

// MessageLogger records a message event with the admin system.
type MessageLogger interface {
	LogMessage(ctx context.Context, phone, direction, text string) error
}

// Client talks to the external billing/admin system. All its calls are
// best-effort from the caller's perspective; errors are returned for logging
// but must never be treated as fatal.
type Client struct {
	linkage    LinkageFunc
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates an admin client that resolves its linkage on every call.
func NewClient(linkage LinkageFunc, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		linkage:    linkage,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type configResponse struct {
	Status       string `json:"status"`
	ProviderKey  string `json:"openai_key"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

// GetConfig fetches the AI auto-reply settings from the admin system.
func (c *Client) GetConfig(ctx context.Context) (ai.Settings, error) {
	var parsed configResponse
	if err := c.call(ctx, "get_config", nil, &parsed); err != nil {
		return ai.Settings{}, err
	}
	return ai.Settings{
		ProviderKey:  parsed.ProviderKey,
		Model:        parsed.Model,
		SystemPrompt: parsed.SystemPrompt,
	}, nil
}

type logResponse struct {
	Status string `json:"status"`
}

// LogMessage records an inbound or outbound message with the admin system.
func (c *Client) LogMessage(ctx context.Context, phone, direction, text string) error {
	params := url.Values{}
	params.Set("phone", phone)
	params.Set("dir", direction)
	params.Set("msg", text)
	var parsed logResponse
	return c.call(ctx, "log_msg", params, &parsed)
}

// call performs a GET request against the admin endpoint with the shared key
// and decodes the JSON response, requiring status == "success".
func (c *Client) call(ctx context.Context, action string, params url.Values, out interface{}) error {
	base, key := c.linkage()
	if base == "" {
		return fmt.Errorf("admin: no admin URL configured")
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("action", action)
	params.Set("key", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("admin: build %s request: %w", action, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("admin: %s request: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin: %s returned %d", action, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("admin: decode %s response: %w", action, err)
	}

	status := statusField(out)
	if status != "success" {
		return fmt.Errorf("admin: %s returned status %q", action, status)
	}
	return nil
}

func statusField(out interface{}) string {
	switch v := out.(type) {
	case *configResponse:
		return v.Status
	case *logResponse:
		return v.Status
	default:
		return ""
	}
}
