package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"PaperDesk/internal/model"
)

// SystemPrompt tells chat models how to answer.
const SystemPrompt = `You are a disciplined crypto trader. Reply with one JSON object and nothing else:
{"action":"BUY|SELL|HOLD|CLOSE","confidence":0-100,"entry_price":number,"stop_loss":number,
"take_profit":number,"position_size":percent of balance 0-100,"leverage":number,
"risk_level":"LOW|MEDIUM|HIGH","reasoning":"short explanation"}`

// ChatConfig configures an OpenAI-compatible chat completions source.
type ChatConfig struct {
	Name          string
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	CostPerKToken float64 // USD per 1000 tokens
	Timeout       time.Duration
	ProxyURL      string
}

// ChatSource asks a chat completions endpoint for a decision.
type ChatSource struct {
	cfg    ChatConfig
	client *resty.Client
	logger *zap.Logger
}

// NewChatSource creates a chat source.
func NewChatSource(cfg ChatConfig, logger *zap.Logger) *ChatSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey)
	if cfg.ProxyURL != "" {
		client.SetProxy(cfg.ProxyURL)
	}
	return &ChatSource{cfg: cfg, client: client, logger: logger.With(zap.String("source", cfg.Name))}
}

// Name returns the configured source name.
func (s *ChatSource) Name() string { return s.cfg.Name }

// Available reports whether an API key and base URL are configured.
func (s *ChatSource) Available() bool { return s.cfg.APIKey != "" && s.cfg.BaseURL != "" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Decide sends the prompt and parses the reply. Authentication and
// availability failures wrap ErrUnavailable; everything else is transient.
func (s *ChatSource) Decide(ctx context.Context, req Request) (model.Decision, model.DecisionMetadata, error) {
	meta := model.DecisionMetadata{Source: s.cfg.Name}
	if !s.Available() {
		return model.Decision{}, meta, fmt.Errorf("%w: %s has no api key", ErrUnavailable, s.cfg.Name)
	}

	start := time.Now()
	var out chatResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: s.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: SystemPrompt},
				{Role: "user", Content: req.Prompt},
			},
			Temperature: s.cfg.Temperature,
			MaxTokens:   s.cfg.MaxTokens,
		}).
		SetResult(&out).
		Post("/chat/completions")
	meta.Latency = time.Since(start)
	if err != nil {
		return model.Decision{}, meta, fmt.Errorf("%w: %s: %v", model.ErrTransient, s.cfg.Name, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired, http.StatusServiceUnavailable:
		return model.Decision{}, meta, fmt.Errorf("%w: %s: status %d", ErrUnavailable, s.cfg.Name, resp.StatusCode())
	default:
		return model.Decision{}, meta, fmt.Errorf("%w: %s: status %d", model.ErrTransient, s.cfg.Name, resp.StatusCode())
	}

	meta.PromptTokens = out.Usage.PromptTokens
	meta.CompletionTokens = out.Usage.CompletionTokens
	meta.TotalTokens = out.Usage.TotalTokens
	meta.Cost = float64(meta.TotalTokens) / 1000 * s.cfg.CostPerKToken

	if len(out.Choices) == 0 {
		return model.Decision{}, meta, fmt.Errorf("%w: %s: %v", model.ErrTransient, s.cfg.Name, ErrMalformed)
	}
	d, err := ParseDecision(out.Choices[0].Message.Content, req.Symbol, s.cfg.Name)
	if err != nil {
		return model.Decision{}, meta, fmt.Errorf("%w: %s: %v", model.ErrTransient, s.cfg.Name, err)
	}

	s.logger.Debug("decision received",
		zap.String("symbol", req.Symbol),
		zap.String("action", string(d.Action)),
		zap.Int("tokens", meta.TotalTokens),
		zap.Duration("latency", meta.Latency))
	return d, meta, nil
}
