package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// Ollama implements the Scanner interface using a local or proxied Ollama server
type Ollama struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewOllama creates a new Ollama Scanner.
// Vision models that read invoices reasonably well: llava:1.6, qwen2-vl:7b, llama3.2-vision.
func NewOllama(cfg Config) *Ollama {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llava"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second // vision models are slow on local hardware
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Name returns the provider name
func (o *Ollama) Name() string {
	return ProviderOllama
}

// Extract analyzes an invoice image and extracts its data.
// The credential is sent as a bearer token for servers behind an auth proxy.
func (o *Ollama) Extract(ctx context.Context, imageData []byte, contentType string, credential string) (*invoice.Document, error) {
	return extract(ctx, o.Name(), o.timeout, imageData, contentType, credential, func(ctx context.Context, pngData []byte) (string, error) {
		reqBody := ollamaChatRequest{
			Model:  o.model,
			Stream: false,
			Format: "json",
			Messages: []ollamaMessage{
				{
					Role:    "system",
					Content: "You are an expert at reading invoices. You carefully read all text in images and extract accurate, structured information.",
				},
				{
					Role:    "user",
					Content: invoiceExtractionPrompt,
					Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
				},
			},
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshaling request: %w", err)
		}

		url := fmt.Sprintf("%s/api/chat", o.baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+credential)

		resp, err := o.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("calling ollama API: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
		}

		var chatResp ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
			return "", fmt.Errorf("decoding response: %w", err)
		}

		return chatResp.Message.Content, nil
	})
}
