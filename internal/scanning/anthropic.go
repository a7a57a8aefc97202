package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// Anthropic implements the Scanner interface using the Anthropic Messages API
type Anthropic struct {
	baseURL   string
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewAnthropic creates a new Anthropic Scanner
func NewAnthropic(cfg Config) *Anthropic {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Anthropic{
		baseURL:   strings.TrimRight(baseURL, "/") + "/",
		model:     model,
		maxTokens: maxTokens,
		timeout:   cfg.Timeout,
	}
}

// Name returns the provider name
func (a *Anthropic) Name() string {
	return ProviderAnthropic
}

// Extract analyzes an invoice image and extracts its data
func (a *Anthropic) Extract(ctx context.Context, imageData []byte, contentType string, credential string) (*invoice.Document, error) {
	return extract(ctx, a.Name(), a.timeout, imageData, contentType, credential, func(ctx context.Context, pngData []byte) (string, error) {
		// The key belongs to the caller, so the client is built per call
		client := anthropic.NewClient(
			anthropicopt.WithAPIKey(credential),
			anthropicopt.WithBaseURL(a.baseURL),
			anthropicopt.WithMaxRetries(0),
		)

		msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: int64(a.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(pngData)),
					anthropic.NewTextBlock(invoiceExtractionPrompt),
				),
			},
		})
		if err != nil {
			return "", fmt.Errorf("calling anthropic API: %w", err)
		}

		var responseText strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				responseText.WriteString(block.Text)
			}
		}
		return responseText.String(), nil
	})
}
