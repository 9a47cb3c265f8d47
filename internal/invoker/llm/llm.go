// Package llm invokes agents through the Anthropic Messages or OpenAI
// Chat Completions HTTP APIs. The agent's instruction file is fetched and
// sent as the system prompt.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/baton/internal/agents"
	"github.com/fentz26/baton/internal/invoker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4"
	defaultMaxTokens        = 4096
	defaultTemperature      = 0.7
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second

	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Config configures the HTTP invoker.
type Config struct {
	Provider    string
	APIKey      string `json:"-"`
	Model       string
	BaseURL     string
	Timeout     time.Duration
	// MaxRetries of zero uses the default; negative disables retries.
	MaxRetries  int
	RateLimit   float64
	Burst       int
	BaseBackoff time.Duration
}

// ErrMissingAPIKey is returned by New when no key is configured.
var ErrMissingAPIKey = errors.New("API key required")

// completer sends one request to a provider.
type completer interface {
	complete(ctx context.Context, system, prompt string) (string, error)
	model() string
}

// Invoker implements invoker.Invoker over an LLM HTTP API.
type Invoker struct {
	provider    string
	dir         *agents.Directory
	api         completer
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	fetcher     InstructionFetcher
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithInstructionFetcher replaces the HTTP instruction fetcher.
func WithInstructionFetcher(f InstructionFetcher) Option {
	return func(i *Invoker) { i.fetcher = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates an invoker for cfg.Provider.
func New(cfg Config, dir *agents.Directory, opts ...Option) (*Invoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrMissingAPIKey)
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	httpClient := &http.Client{Timeout: timeout}

	var api completer
	switch cfg.Provider {
	case ProviderAnthropic:
		api = &anthropicClient{
			modelName:  orDefault(cfg.Model, defaultAnthropicModel),
			apiKey:     cfg.APIKey,
			baseURL:    orDefault(cfg.BaseURL, defaultAnthropicBaseURL),
			httpClient: httpClient,
		}
	case ProviderOpenAI:
		api = &openAIClient{
			modelName:  orDefault(cfg.Model, defaultOpenAIModel),
			apiKey:     cfg.APIKey,
			baseURL:    orDefault(cfg.BaseURL, defaultOpenAIBaseURL),
			httpClient: httpClient,
		}
	default:
		return nil, fmt.Errorf("unsupported provider: %q", cfg.Provider)
	}

	limit, burst := defaultRateLimit, defaultBurst
	if cfg.RateLimit > 0 {
		limit = cfg.RateLimit
	}
	if cfg.Burst > 0 {
		burst = cfg.Burst
	}
	maxRetries := defaultMaxRetries
	switch {
	case cfg.MaxRetries > 0:
		maxRetries = cfg.MaxRetries
	case cfg.MaxRetries < 0:
		maxRetries = 0
	}
	backoff := defaultBaseBackoff
	if cfg.BaseBackoff > 0 {
		backoff = cfg.BaseBackoff
	}

	inv := &Invoker{
		provider:    cfg.Provider,
		dir:         dir,
		api:         api,
		limiter:     rate.NewLimiter(rate.Limit(limit), burst),
		maxRetries:  maxRetries,
		baseBackoff: backoff,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(inv)
	}
	if inv.fetcher == nil {
		inv.fetcher = NewHTTPFetcher(httpClient)
	}
	inv.logger = inv.logger.Named("llm")
	return inv, nil
}

// Name implements invoker.Invoker.
func (i *Invoker) Name() string {
	return i.provider
}

// Invoke implements invoker.Invoker.
func (i *Invoker) Invoke(ctx context.Context, req invoker.Request) (*invoker.Response, error) {
	system := i.systemPrompt(ctx, req)
	prompt := invoker.BuildPrompt(i.dir, req)

	text, err := i.completeWithRetry(ctx, system, prompt)
	if err != nil {
		return nil, invoker.Wrap(req.Agent, err)
	}
	if text == "" {
		return nil, invoker.Wrap(req.Agent, invoker.ErrEmptyResponse)
	}

	convID := req.ConversationID
	if convID == "" {
		convID = i.provider + "-" + strconv.FormatInt(i.now().UnixMilli(), 10)
	}
	return &invoker.Response{
		Text:           text,
		ConversationID: convID,
		Metadata:       map[string]interface{}{"model": i.api.model(), "provider": i.provider},
	}, nil
}

func (i *Invoker) completeWithRetry(ctx context.Context, system, prompt string) (string, error) {
	if err := i.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= i.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := i.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := i.api.complete(ctx, system, prompt)
		if err == nil {
			return text, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
		i.logger.Debug("retrying request", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// systemPrompt returns the agent's instruction file, or a short stand-in
// when it cannot be fetched.
func (i *Invoker) systemPrompt(ctx context.Context, req invoker.Request) string {
	a, ok := i.dir.Get(req.Agent)
	url := agents.InstructionURL(req.Agent)
	if ok && a.InstructionURL != "" {
		url = a.InstructionURL
	}

	text, err := i.fetcher.Fetch(ctx, url)
	if err == nil && text != "" {
		return text
	}
	i.logger.Warn("instruction file unavailable", zap.String("url", url), zap.Error(err))
	return fmt.Sprintf("You are %s, the %s. Follow the instructions at %s.", i.dir.DisplayName(req.Agent), a.Role, url)
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryableError(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var _ invoker.Invoker = (*Invoker)(nil)
