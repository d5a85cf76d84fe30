// Package email sends mail through the Resend REST API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haasonsaas/chatagent/internal/agent"
)

const (
	DefaultBaseURL = "https://api.resend.com"
	DefaultFrom    = "AI Agent <hi@updates.fp.dev>"
)

// Config configures the sender.
type Config struct {
	APIKey  string
	From    string
	BaseURL string

	// RatePerSecond caps outgoing requests. Default: 2, the Resend team limit.
	RatePerSecond float64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Input is the input for sendEmail.
type Input struct {
	To        string `json:"to" jsonschema:"description=Email address of the recipient"`
	Subject   string `json:"subject" jsonschema:"description=Subject line of the email"`
	FirstName string `json:"firstName" jsonschema:"description=First name of the recipient"`
	Message   string `json:"message" jsonschema:"description=Main content of the email"`
}

// Tool is the sendEmail tool. It is registered as confirmation-required.
type Tool struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates the sendEmail tool.
func New(cfg Config) *Tool {
	if cfg.From == "" {
		cfg.From = DefaultFrom
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tool{
		cfg:     cfg,
		client:  cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		logger:  cfg.Logger.With("tool", "sendEmail"),
	}
}

func (t *Tool) Name() string { return "sendEmail" }

func (t *Tool) Description() string { return "Send an email to a recipient using Resend service" }

func (t *Tool) Schema() json.RawMessage { return agent.SchemaFor[Input]() }

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type apiError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input Input
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if t.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: RESEND_API_KEY is not set", agent.ErrMissingCredential)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return errorResult("Error sending email: %v", err), nil
	}

	body, err := json.Marshal(sendRequest{
		From:    t.cfg.From,
		To:      []string{input.To},
		Subject: input.Subject,
		HTML:    RenderHTML(input.Subject, input.FirstName, input.Message),
	})
	if err != nil {
		return nil, fmt.Errorf("encode email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.WarnContext(ctx, "email delivery failed", "error", err)
		return errorResult("Error sending email: %v", err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		var apiErr apiError
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		t.logger.WarnContext(ctx, "email rejected", "status", resp.StatusCode, "error", msg)
		return errorResult("Failed to send email: %s", msg), nil
	}

	t.logger.InfoContext(ctx, "email sent", "subject", input.Subject)
	return &agent.ToolResult{Content: fmt.Sprintf("Email successfully sent to %s with subject %q", input.To, input.Subject)}, nil
}

// RenderHTML builds the greeting body. Inputs are escaped.
func RenderHTML(subject, firstName, message string) string {
	if subject == "" {
		subject = "Hello from your AI Agent"
	}
	if message == "" {
		message = "Thank you for using our AI agent!"
	}
	var sb strings.Builder
	sb.WriteString("<div>")
	fmt.Fprintf(&sb, "<h1>%s</h1>", html.EscapeString(subject))
	fmt.Fprintf(&sb, "<p>Hello %s,</p>", html.EscapeString(firstName))
	fmt.Fprintf(&sb, "<p>%s</p>", html.EscapeString(message))
	sb.WriteString("<p>Best regards,</p><p>Your AI Assistant</p></div>")
	return sb.String()
}

func errorResult(format string, args ...any) *agent.ToolResult {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}
