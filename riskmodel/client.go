package riskmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/internal/tlsutil"
	"github.com/nilayparikh/loanflow/types"
)

const systemPrompt = `You are an expert mortgage risk assessor. Given a loan application with its
deterministic rule check results, produce a risk assessment score from 0 to 100.

0 = no risk (perfect applicant), 100 = maximum risk (certain default).

Consider:
- Credit history and score relative to loan type requirements
- Debt-to-income ratio and its trajectory
- Employment stability
- Derogatory marks and explanations
- Compensating factors (reserves, first-time buyer programmes, LOE)

Respond with ONLY valid JSON:
{
  "llm_score": <0-100>,
  "reasoning": "<2-3 sentence explanation>",
  "risk_factors": ["<factor1>", ...],
  "compensating_factors": ["<factor1>", ...]
}`

// Config holds the configuration for an OpenAI-compatible scoring
// endpoint. Any chat-completions server works: hosted model APIs or a
// local inference gateway.
type Config struct {
	// ProviderName identifies the backend in logs and metrics.
	ProviderName string `yaml:"provider_name" json:"provider_name"`

	// BaseURL is the service root, e.g. "https://models.github.ai/inference".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey authenticates via "Authorization: Bearer".
	APIKey string `yaml:"api_key" json:"-"`

	// Model is the completion model to request.
	Model string `yaml:"model" json:"model"`

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string `yaml:"endpoint_path" json:"endpoint_path"`

	// Timeout bounds the whole call. Defaults to 45s.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Temperature defaults to 0.3: low variance, still some judgment.
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// MaxTokens defaults to 250, enough for the JSON verdict.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

// Client calls an OpenAI-compatible chat-completions endpoint and
// parses the structured verdict out of the first choice.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

var _ Provider = (*Client)(nil)

// NewClient creates a Client, applying defaults for zero-value fields.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai-compatible"
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 250
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "riskmodel"), zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the configured provider name.
func (c *Client) Name() string { return c.cfg.ProviderName }

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
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Assess sends one bounded completion request and parses the verdict.
// All failure modes (transport, HTTP status, malformed payload,
// out-of-range score) return a dependency error; the caller degrades.
func (c *Client) Assess(ctx context.Context, input Input) (*Assessment, error) {
	prompt := buildPrompt(input)

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.EndpointPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, types.NewDependencyError("decode completion response").
			WithCause(err).WithStage("risk_scorer")
	}
	if len(cr.Choices) == 0 {
		return nil, types.NewDependencyError("completion response has no choices").WithStage("risk_scorer")
	}

	assessment, err := parseAssessment(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("model assessment complete",
		zap.String("applicant_id", input.Application.ApplicantID),
		zap.Float64("llm_score", assessment.Score),
		zap.Int("estimated_prompt_tokens", c.estimateTokens(systemPrompt+prompt)),
		zap.Duration("latency", time.Since(start)),
	)

	return assessment, nil
}

// HealthCheck issues a minimal request to verify reachability. A 4xx
// still proves the endpoint is alive; only transport errors fail.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/models"), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return c.statusError(resp.StatusCode, readErrorMessage(resp.Body))
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) setHeaders(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "model call exceeded deadline").
			WithHTTPStatus(http.StatusGatewayTimeout).WithRetryable(true).
			WithStage("risk_scorer").WithCause(err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return types.NewError(types.ErrUpstreamTimeout, "model call timed out").
			WithHTTPStatus(http.StatusGatewayTimeout).WithRetryable(true).
			WithStage("risk_scorer").WithCause(err)
	}
	return types.NewDependencyError("model service unreachable").
		WithCause(err).WithStage("risk_scorer")
}

func (c *Client) statusError(status int, msg string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrUnauthorized, fmt.Sprintf("model service rejected credentials: %s", msg)).
			WithHTTPStatus(status).WithStage("risk_scorer")
	case status == http.StatusTooManyRequests:
		return types.NewRateLimitedError(fmt.Sprintf("model service throttled: %s", msg)).WithStage("risk_scorer")
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, fmt.Sprintf("model service error %d: %s", status, msg)).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithStage("risk_scorer")
	default:
		return types.NewDependencyError(fmt.Sprintf("model service returned %d: %s", status, msg)).
			WithStage("risk_scorer")
	}
}

// parseAssessment extracts the JSON verdict, tolerating markdown fences
// some models wrap around it. A score outside [0,100] is malformed.
func parseAssessment(raw string) (*Assessment, error) {
	raw = stripFences(strings.TrimSpace(raw))

	var a Assessment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, types.NewDependencyError("model returned malformed verdict").
			WithCause(err).WithStage("risk_scorer")
	}
	if a.Score < 0 || a.Score > 100 {
		return nil, types.NewDependencyError(
			fmt.Sprintf("model score %.1f outside [0,100]", a.Score)).WithStage("risk_scorer")
	}
	return &a, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func buildPrompt(input Input) string {
	app := input.Application
	var b strings.Builder
	b.WriteString("Loan Application Risk Assessment\n")
	b.WriteString("================================\n")
	fmt.Fprintf(&b, "Applicant: %s (%s)\n", app.FullName, app.ApplicantID)
	fmt.Fprintf(&b, "Loan Type: %s\n", app.LoanType)
	fmt.Fprintf(&b, "Credit Score: %d\n", app.CreditScore)
	fmt.Fprintf(&b, "DTI Ratio: %.4f\n", input.DTI)
	fmt.Fprintf(&b, "LTV Ratio: %.4f\n", input.LTV)
	fmt.Fprintf(&b, "Employment: %d months\n", app.EmploymentMonths)
	fmt.Fprintf(&b, "Derogatory Marks: %d\n", app.DerogatoryMarks)
	notes := app.DerogatoryMarkNotes
	if notes == "" {
		notes = "None"
	}
	fmt.Fprintf(&b, "Mark Notes: %s\n", notes)
	fmt.Fprintf(&b, "First-time Homebuyer: %t\n", app.FirstTimeHomebuyer)
	fmt.Fprintf(&b, "Letter of Explanation: %t\n", app.HasLetterOfExplanation)
	fmt.Fprintf(&b, "\nDeterministic Rule Score: %d/100 (higher = more risk)\n", input.RuleScore)
	return b.String()
}

// estimateTokens is best-effort: the encoding data may need a download
// on first use, and estimation failures only cost a log field.
func (c *Client) estimateTokens(text string) int {
	c.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Debug("tokenizer unavailable", zap.Error(err))
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(data))
}
