package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/feichai0017/docformat/config"
)

// Role of a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TransportError covers every way a completion request can fail.
// StatusCode is zero when no response was received.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("assistant request failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("assistant request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// errNoChoices is wrapped when the completion has nothing to return.
var errNoChoices = errors.New("no response from assistant")

type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Endpoint:    "https://api.siliconflow.cn/v1/chat/completions",
		Model:       "Qwen/Qwen2-7B-Instruct",
		MaxTokens:   512,
		Temperature: 0.7,
		TopP:        0.7,
		Timeout:     60 * time.Second,
	}
}

// ClientConfigFrom maps the assistant config section.
func ClientConfigFrom(cfg config.AssistantConfig) *ClientConfig {
	return &ClientConfig{
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Timeout:     cfg.Timeout,
	}
}

// completionRequest OpenAI 兼容的 chat completions 请求体
type completionRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Stream           bool            `json:"stream"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	TopK             int             `json:"top_k"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
	N                int             `json:"n"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:        *cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete sends the conversation and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	reqData, err := json.Marshal(completionRequest{
		Model:            c.cfg.Model,
		Messages:         messages,
		MaxTokens:        c.cfg.MaxTokens,
		Temperature:      c.cfg.Temperature,
		TopP:             c.cfg.TopP,
		TopK:             50,
		FrequencyPenalty: 0.5,
		N:                1,
		ResponseFormat:   &responseFormat{Type: "text"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(reqData))
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", string(body))}
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if result.Error != nil && result.Error.Message != "" {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: errors.New(result.Error.Message)}
	}
	if len(result.Choices) == 0 {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: errNoChoices}
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
