package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

// GeminiProvider calls the Gemini API through the genai SDK
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger *logrus.Logger
}

// NewGeminiProvider creates a Gemini client
func NewGeminiProvider(ctx context.Context, cfg config.GenerationConfig, logger *logrus.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if strings.HasPrefix(cfg.Model, "gpt-") {
		return nil, fmt.Errorf("model %q is not a Gemini model", cfg.Model)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger.WithField("model", cfg.Model).Info("Gemini provider initialized")
	return &GeminiProvider{client: client, model: cfg.Model, logger: logger}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Complete sends the prompt as one user turn
func (p *GeminiProvider) Complete(ctx context.Context, req models.GenerationRequest) (string, error) {
	temperature := req.Temperature
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
		StopSequences:   req.Stop,
		SafetySettings:  safetySettings,
	})
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			return "", NewProviderError(p.Name(), apiErr.Code, err)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", NewProviderError(p.Name(), 0, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyReply
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errEmptyReply
	}
	return text, nil
}
