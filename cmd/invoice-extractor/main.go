package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/rs/zerolog/log"

	"github.com/zombor/invoice-extractor/internal/batch"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/logger"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional; real environment variables take precedence
	envErr := godotenv.Load()

	flags := ff.NewFlagSet("invoice-extractor")
	var (
		provider    = flags.StringLong("provider", scanning.ProviderAnthropic, "Model provider: anthropic, gemini, openai or ollama")
		model       = flags.StringLong("model", "", "Model name (provider default when empty)")
		apiKey      = flags.StringLong("api-key", "", "Provider API key (or set the provider's env var, e.g. ANTHROPIC_API_KEY)")
		baseURL     = flags.StringLong("base-url", "", "Provider API base URL (provider default when empty)")
		timeout     = flags.DurationLong("timeout", 60*time.Second, "Timeout for each extraction call")
		maxTokens   = flags.IntLong("max-tokens", 4000, "Maximum tokens in the model response")
		outDir      = flags.StringLong("out", ".", "Directory export files are written to")
		archive     = flags.BoolLong("archive", "Also write a bbolt archive of the results")
		serve       = flags.BoolLong("serve", "Start the HTTP API instead of processing files")
		port        = flags.IntLong("port", 8080, "HTTP server port")
		authUser    = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = flags.StringLong("log-level", "info", "Log level: trace, debug, info, warn, error")
		logFormat   = flags.StringLong("log-format", "console", "Log format: console or json")
		showVersion = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = *logLevel
	logCfg.Format = *logFormat
	if err := logger.Setup(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn().Err(envErr).Msg("Failed to load .env file")
	}

	scanner, err := scanning.New(scanning.Config{
		Provider:  *provider,
		Model:     *model,
		BaseURL:   *baseURL,
		Timeout:   *timeout,
		MaxTokens: *maxTokens,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize scanner")
		os.Exit(1)
	}

	credential := *apiKey
	if credential == "" {
		credential = os.Getenv(scanning.CredentialEnvVar(*provider))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := batch.NewService(scanner, invoice.NewStore())

	if *serve {
		if err := runServer(ctx, service, credential, *port, batch.BasicAuth{Username: *authUser, Password: *authPass}); err != nil {
			log.Error().Err(err).Msg("Server error")
			os.Exit(1)
		}
		return
	}

	if err := runBatch(ctx, service, credential, flags.GetArgs(), *outDir, *archive); err != nil {
		log.Error().Err(err).Msg("Batch failed")
		os.Exit(1)
	}
}

func runServer(ctx context.Context, service *batch.Service, credential string, port int, auth batch.BasicAuth) error {
	server := batch.NewServer(service, batch.ServerConfig{
		BasicAuth:  auth,
		Credential: credential,
	})

	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("address", fmt.Sprintf("http://localhost%s", addr)).Msg("Server starting")
	if auth.Username != "" || auth.Password != "" {
		log.Info().Str("user", auth.Username).Msg("Basic auth enabled")
	}
	if credential == "" {
		log.Warn().Msg("No default API key configured; requests must send X-API-Key")
	}

	if err := server.Start(ctx, addr); err != nil {
		return err
	}
	log.Info().Msg("Shutting down...")
	return nil
}

func runBatch(ctx context.Context, service *batch.Service, credential string, paths []string, outDir string, archive bool) error {
	if len(paths) == 0 {
		return errors.New("no invoice images given; pass image paths as arguments or use --serve")
	}

	items, err := readItems(paths)
	if err != nil {
		return err
	}

	service.OnProgress(func(current, total int, id string) {
		log.Info().Msgf("Processing %d/%d: %s", current, total, id)
	})

	report, err := service.ProcessAll(ctx, items, credential)
	for _, f := range report.Failures {
		log.Warn().Str("file", f.Identifier).Str("kind", string(f.Kind)).Msg(f.Message)
	}
	if err != nil {
		if scanning.KindOf(err) == scanning.KindInvalidCredential {
			return fmt.Errorf("%w: set --api-key or %s", err, scanning.CredentialEnvVar(service.ProviderName()))
		}
		if !errors.Is(err, context.Canceled) {
			return err
		}
	}

	storage, err := batch.NewLocalStorage(outDir)
	if err != nil {
		return err
	}
	written, err := batch.Export(storage, service.Store().All(), time.Now(), batch.ExportOptions{Archive: archive})
	if err != nil {
		return fmt.Errorf("exporting results: %w", err)
	}

	log.Info().
		Int("succeeded", report.SuccessCount).
		Int("failed", report.FailureCount).
		Strs("files", written).
		Msg("Done")

	if report.SuccessCount == 0 {
		return errors.New("no invoice could be extracted")
	}
	return nil
}

// readItems loads each path as one batch item keyed by its file name
func readItems(paths []string) ([]invoice.Item, error) {
	items := make([]invoice.Item, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		items = append(items, invoice.Item{
			ID:          batch.CleanIdentifier(path),
			Data:        data,
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
		})
	}
	return items, nil
}
