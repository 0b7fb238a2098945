package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger *logrus.Logger
}

// NewOpenAIProvider creates a provider from configuration
func NewOpenAIProvider(cfg config.GenerationConfig, logger *logrus.Logger) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	logger.WithFields(logrus.Fields{
		"model":   cfg.Model,
		"baseURL": clientCfg.BaseURL,
	}).Info("OpenAI-compatible provider initialized")

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends the prompt as a single user message
func (p *OpenAIProvider) Complete(ctx context.Context, req models.GenerationRequest) (string, error) {
	p.logger.WithFields(logrus.Fields{
		"model":      p.model,
		"max_tokens": req.MaxTokens,
	}).Debug("Sending completion request")

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	})
	if err != nil {
		return "", p.translate(err)
	}

	if len(resp.Choices) == 0 {
		return "", errEmptyReply
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errEmptyReply
	}
	return text, nil
}

func (p *OpenAIProvider) translate(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(p.Name(), apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(p.Name(), reqErr.HTTPStatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	// no HTTP status: the request never completed
	return NewProviderError(p.Name(), 0, err)
}
