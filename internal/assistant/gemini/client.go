package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/creditledger/internal/assistant/domain"
	"github.com/smallbiznis/creditledger/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-flash-latest"
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 4 << 10
)

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the generateContent endpoint of the Generative Language API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("gemini: invalid base url: %w", err)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
		tracer:  otel.Tracer("creditledger/assistant/gemini"),
	}, nil
}

// NewFromConfig builds the client from the assistant settings. A missing
// API key does not fail startup; every call then reports the service as
// unavailable.
func NewFromConfig(cfg config.Config) (domain.Inference, error) {
	client, err := New(Options{
		APIKey:  cfg.Assistant.APIKey,
		Model:   cfg.Assistant.Model,
		BaseURL: cfg.Assistant.BaseURL,
		Timeout: time.Duration(cfg.Assistant.TimeoutSecond) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) Model() string { return c.model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: api key not configured", domain.ErrInferenceUnavailable)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", domain.ErrInvalidMessage
	}

	ctx, span := c.tracer.Start(ctx, "gemini.GenerateContent", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("gen_ai.request.model", c.model))

	raw, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		// The URL carries the key; keep it out of the error.
		return "", fmt.Errorf("%w: transport failure", domain.ErrInferenceUnavailable)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		span.SetStatus(codes.Error, resp.Status)
		return "", classifyStatus(resp.StatusCode, body)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrInferenceUnavailable, err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		span.SetStatus(codes.Error, "blocked")
		return "", fmt.Errorf("%w: prompt blocked: %s", domain.ErrInferenceRejected, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", domain.ErrEmptyReply
	}

	var reply strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		reply.WriteString(p.Text)
	}
	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", domain.ErrEmptyReply
	}
	return text, nil
}

func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: status %d: %s", domain.ErrInferenceUnavailable, status, msg)
	}
	return fmt.Errorf("%w: status %d: %s", domain.ErrInferenceRejected, status, msg)
}
