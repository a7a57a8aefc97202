package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// OpenAI implements the Scanner interface using the OpenAI chat completions API
// (or any compatible endpoint set through BaseURL)
type OpenAI struct {
	baseURL    string
	model      string
	maxTokens  int
	timeout    time.Duration
	httpClient *http.Client
}

// NewOpenAI creates a new OpenAI Scanner
func NewOpenAI(cfg Config) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAI{
		baseURL:    cfg.BaseURL,
		model:      model,
		maxTokens:  maxTokens,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
	}
}

// Name returns the provider name
func (o *OpenAI) Name() string {
	return ProviderOpenAI
}

// Extract analyzes an invoice image and extracts its data
func (o *OpenAI) Extract(ctx context.Context, imageData []byte, contentType string, credential string) (*invoice.Document, error) {
	return extract(ctx, o.Name(), o.timeout, imageData, contentType, credential, func(ctx context.Context, pngData []byte) (string, error) {
		config := openai.DefaultConfig(credential)
		if o.baseURL != "" {
			config.BaseURL = o.baseURL
		}
		config.HTTPClient = o.httpClient
		client := openai.NewClientWithConfig(config)

		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     o.model,
			MaxTokens: o.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{
							Type: openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{
								URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData),
								Detail: openai.ImageURLDetailHigh,
							},
						},
						{
							Type: openai.ChatMessagePartTypeText,
							Text: invoiceExtractionPrompt,
						},
					},
				},
			},
		})
		if err != nil {
			return "", fmt.Errorf("openai request failed: %w", err)
		}

		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response choices from openai")
		}
		return resp.Choices[0].Message.Content, nil
	})
}
