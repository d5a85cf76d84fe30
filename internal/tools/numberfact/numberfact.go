// Package numberfact looks up trivia about a number from a numbers API.
package numberfact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/haasonsaas/chatagent/internal/agent"
)

const (
	DefaultBaseURL  = "https://numbersapi.com"
	DefaultCacheTTL = time.Hour
	DefaultTimeout  = 10 * time.Second

	maxFactBytes = 64 << 10
)

// Config configures the lookup.
type Config struct {
	BaseURL  string
	CacheTTL time.Duration
	// Timeout bounds one shared lookup, independent of any single caller.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Input is the input for getNumberFact.
type Input struct {
	Number float64 `json:"number" jsonschema:"description=The number to get a fact about"`
}

// Tool fetches number facts. Answers are cached and concurrent lookups of the
// same number share one request, which outlives a caller that gives up early.
type Tool struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	cache   *gocache.Cache
	group   singleflight.Group
}

// New creates the getNumberFact tool.
func New(cfg Config) *Tool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Tool{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		cache:   gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

func (t *Tool) Name() string { return "getNumberFact" }

func (t *Tool) Description() string { return "Get an interesting fact about a specific number" }

func (t *Tool) Schema() json.RawMessage { return agent.SchemaFor[Input]() }

// Independent reports that lookups share no session state.
func (t *Tool) Independent() bool { return true }

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input Input
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	key := strconv.FormatFloat(input.Number, 'f', -1, 64)

	if fact, ok := t.cache.Get(key); ok {
		return &agent.ToolResult{Content: fact.(string)}, nil
	}

	flight := t.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()
		fact, err := t.fetch(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		t.cache.SetDefault(key, fact)
		return fact, nil
	})
	select {
	case <-ctx.Done():
		return nil, agent.ExternalServiceError("number fact", ctx.Err())
	case res := <-flight:
		if res.Err != nil {
			return nil, agent.ExternalServiceError("number fact", res.Err)
		}
		return &agent.ToolResult{Content: res.Val.(string)}, nil
	}
}

func (t *Tool) fetch(ctx context.Context, number string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/"+number, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFactBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
