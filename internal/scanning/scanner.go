package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/logger"
)

// Scanner turns an invoice image into a Document using a hosted multimodal model.
// Every error it returns is an *ExtractionError.
type Scanner interface {
	// Extract analyzes one invoice image. credential is passed through to the
	// provider and must not be empty.
	Extract(ctx context.Context, imageData []byte, contentType string, credential string) (*invoice.Document, error)

	// Name returns the provider name
	Name() string
}

// Provider names accepted by New
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 4000
)

// Config selects and tunes a provider
type Config struct {
	Provider  string
	Model     string        // provider default when empty
	BaseURL   string        // provider default when empty
	Timeout   time.Duration // per call; 60s when zero
	MaxTokens int           // 4000 when zero
}

// New creates the Scanner named by cfg.Provider
func New(cfg Config) (Scanner, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic, "":
		return NewAnthropic(cfg), nil
	case ProviderGemini:
		return NewGemini(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderOllama:
		return NewOllama(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: anthropic, gemini, openai, ollama)", cfg.Provider)
	}
}

// CredentialEnvVar returns the environment variable conventionally holding
// the provider's API key
func CredentialEnvVar(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderOllama:
		return "OLLAMA_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// completeFunc sends the prepared PNG and the prompt to a provider and
// returns the raw text of the reply
type completeFunc func(ctx context.Context, pngData []byte) (string, error)

// extract runs the shared extraction flow around a provider call: credential
// check, image preparation, bounded timeout, parsing and error classification.
func extract(ctx context.Context, provider string, timeout time.Duration, imageData []byte, contentType, credential string, complete completeFunc) (*invoice.Document, error) {
	log := logger.WithComponent("scanning").With().Str("provider", provider).Logger()

	if strings.TrimSpace(credential) == "" {
		return nil, NewError(KindInvalidCredential, provider, ErrEmptyCredential)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewError(KindCanceled, provider, err)
	}

	pngData, converted, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, NewError(KindInvalidImage, provider, err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	log.Debug().
		Int("file_size", len(imageData)).
		Bool("converted", converted).
		Dur("timeout", timeout).
		Msg("sending extraction request")

	text, err := complete(callCtx, pngData)
	if err != nil {
		return nil, classifyCallError(ctx, provider, err)
	}

	doc, err := parseResponse(text)
	if err != nil {
		logResponse(log, text, err)
		return nil, NewError(KindMalformedResponse, provider, err)
	}

	log.Debug().
		Str("invoice_number", doc.Invoice.Header.InvoiceNumber).
		Int("line_items", len(doc.Invoice.LineItems)).
		Dur("elapsed", time.Since(start)).
		Msg("extraction complete")

	return doc, nil
}

// classifyCallError separates caller cancellation from transport failures.
// A timeout of the per-call deadline is a transport failure.
func classifyCallError(parent context.Context, provider string, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return NewError(KindCanceled, provider, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTransport, provider, fmt.Errorf("request timed out: %w", err))
	}
	return NewError(KindTransport, provider, err)
}

func logResponse(log zerolog.Logger, text string, err error) {
	const maxLogged = 500
	if len(text) > maxLogged {
		text = text[:maxLogged] + "..."
	}
	log.Warn().Err(err).Str("response", text).Msg("unparseable model response")
}
