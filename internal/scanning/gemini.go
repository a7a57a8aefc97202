package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	model    string
	endpoint string
	timeout  time.Duration
}

// NewGemini creates a new Gemini Scanner. A client is built per call from
// the credential passed to Extract.
func NewGemini(cfg Config) *Gemini {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-pro"
	}
	return &Gemini{
		model:    model,
		endpoint: strings.TrimRight(cfg.BaseURL, "/"),
		timeout:  cfg.Timeout,
	}
}

// Name returns the provider name
func (g *Gemini) Name() string {
	return ProviderGemini
}

// Extract analyzes an invoice image and extracts its data
func (g *Gemini) Extract(ctx context.Context, imageData []byte, contentType string, credential string) (*invoice.Document, error) {
	return extract(ctx, g.Name(), g.timeout, imageData, contentType, credential, func(ctx context.Context, pngData []byte) (string, error) {
		opts := []option.ClientOption{option.WithAPIKey(credential)}
		if g.endpoint != "" {
			opts = append(opts, option.WithEndpoint(g.endpoint))
		}

		client, err := genai.NewClient(ctx, opts...)
		if err != nil {
			return "", fmt.Errorf("creating gemini client: %w", err)
		}
		defer client.Close()

		model := client.GenerativeModel(g.model)

		// genai.ImageData expects the format suffix ("png"), not the MIME type
		resp, err := model.GenerateContent(ctx,
			genai.ImageData("png", pngData),
			genai.Text(invoiceExtractionPrompt),
		)
		if err != nil {
			return "", fmt.Errorf("generating content: %w", err)
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("no response from gemini")
		}

		var responseText strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				responseText.WriteString(string(text))
			}
		}
		return responseText.String(), nil
	})
}
