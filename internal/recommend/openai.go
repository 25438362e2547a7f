// Package recommend is the boundary to the text-generation backend. The
// conversation flow hands it a prompt and gets generated text back.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/m3rciful/interestbot/core/logger"
	"github.com/m3rciful/interestbot/internal/apperr"
)

const (
	// ProviderOpenAI talks to the OpenAI chat completions API (or any compatible base URL).
	ProviderOpenAI = "openai"
	// ProviderAzure talks to an Azure OpenAI style deployment.
	ProviderAzure = "azure"

	defaultModel        = "gpt-4o-mini"
	defaultTimeout      = 60 * time.Second
	defaultSystemPrompt = "You are a helpful assistant."
)

// Generator turns a prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the generation backend settings.
type Config struct {
	Provider string `yaml:"provider" envconfig:"GENERATION_PROVIDER"`
	APIKey   string `yaml:"api_key" envconfig:"GENERATION_API_KEY"`
	BaseURL  string `yaml:"base_url" envconfig:"GENERATION_BASE_URL"`
	Model    string `yaml:"model" envconfig:"GENERATION_MODEL"`
	// APIVersion is only used by the azure provider.
	APIVersion     string  `yaml:"api_version" envconfig:"GENERATION_API_VERSION"`
	SystemPrompt   string  `yaml:"system_prompt" envconfig:"GENERATION_SYSTEM_PROMPT"`
	Temperature    float32 `yaml:"temperature" envconfig:"GENERATION_TEMPERATURE"`
	MaxTokens      int     `yaml:"max_tokens" envconfig:"GENERATION_MAX_TOKENS"`
	TimeoutSeconds int     `yaml:"timeout_seconds" envconfig:"GENERATION_TIMEOUT_SECONDS"`
	// RecommendPrompt is the text/template used for activity recommendations.
	RecommendPrompt string `yaml:"recommend_prompt" envconfig:"GENERATION_RECOMMEND_PROMPT"`
}

// OpenAIGenerator calls the chat completions endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	system      string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAI builds a generator from cfg.
func NewOpenAI(cfg Config) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("generation: api_key is required")
	}

	var clientCfg openai.ClientConfig
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
	case ProviderAzure:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("generation: base_url is required for provider %q", ProviderAzure)
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	default:
		return nil, fmt.Errorf("generation: unknown provider %q; allowed: openai, azure", cfg.Provider)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		system:      system,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
	}, nil
}

// Generate sends prompt as the user message and returns the first choice.
// Every failure is reported as transient.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
	}
	if g.maxTokens > 0 {
		req.MaxTokens = g.maxTokens
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logger.Error(ctx, "generation", "generate.fail",
			slog.String("model", g.model),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
		return "", apperr.Transient("generation", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperr.Transient("generation", errors.New("empty completion"))
	}

	logger.Debug(ctx, "generation", "generate.ok",
		slog.String("model", g.model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
