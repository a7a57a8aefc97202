package batch

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/logger"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

// IDGenerator generates unique IDs for batches
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ProgressFunc is called before each item of a batch is processed.
// current is 1-based.
type ProgressFunc func(current, total int, id string)

// Failure describes one item that could not be extracted
type Failure struct {
	Identifier string        `json:"identifier"`
	Kind       scanning.Kind `json:"kind"`
	Message    string        `json:"message"`
}

// BatchReport summarizes one ProcessAll run.
// SuccessCount + FailureCount always equals Total.
type BatchReport struct {
	BatchID      string        `json:"batch_id"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Failures     []Failure     `json:"failures"`
	Elapsed      time.Duration `json:"elapsed"`
}

func (r *BatchReport) fail(id string, err error) {
	r.FailureCount++
	r.Failures = append(r.Failures, Failure{
		Identifier: id,
		Kind:       scanning.KindOf(err),
		Message:    err.Error(),
	})
}

// Service runs extractions and keeps the results in a Store
type Service struct {
	scanner     scanning.Scanner
	store       *invoice.Store
	idGenerator IDGenerator
	timeSource  TimeSource
	progress    ProgressFunc
}

// NewService creates a new Service with a UUID batch ID generator and the wall clock
func NewService(scanner scanning.Scanner, store *invoice.Store) *Service {
	return NewServiceWithDeps(scanner, store, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(scanner scanning.Scanner, store *invoice.Store, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		scanner:     scanner,
		store:       store,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// OnProgress registers fn to be called before each item of a batch
func (s *Service) OnProgress(fn ProgressFunc) {
	s.progress = fn
}

// ProviderName returns the name of the scanner's provider
func (s *Service) ProviderName() string {
	return s.scanner.Name()
}

// Store returns the store results are written to
func (s *Service) Store() *invoice.Store {
	return s.store
}

var (
	unsafeIdentifierChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	repeatedSpaces        = regexp.MustCompile(`\s+`)
)

// CleanIdentifier reduces an uploaded filename to the base name used as the
// store key: directories and control characters are dropped.
func CleanIdentifier(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = unsafeIdentifierChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if base == "" || base == "." || base == "/" {
		return "invoice"
	}
	return base
}

// ProcessAll extracts every item in input order, one at a time, and writes each
// success into the store. A failed item is counted and the batch continues.
//
// An empty credential fails every item without calling the scanner. When ctx is
// canceled the remaining items are counted as canceled and ctx.Err() is returned
// together with the report.
func (s *Service) ProcessAll(ctx context.Context, items []invoice.Item, credential string) (BatchReport, error) {
	start := s.timeSource.Now()
	report := BatchReport{
		BatchID:  s.idGenerator.Generate(),
		Total:    len(items),
		Failures: []Failure{},
	}
	log := logger.WithComponent("batch").With().
		Str("batch_id", report.BatchID).
		Str("provider", s.scanner.Name()).
		Logger()

	if len(items) == 0 {
		return report, nil
	}

	if strings.TrimSpace(credential) == "" {
		err := scanning.NewError(scanning.KindInvalidCredential, s.scanner.Name(), scanning.ErrEmptyCredential)
		for _, item := range items {
			report.fail(item.ID, err)
		}
		report.Elapsed = s.timeSource.Now().Sub(start)
		log.Error().Err(err).Int("total", report.Total).Msg("batch rejected")
		return report, err
	}

	log.Info().Int("total", report.Total).Msg("batch started")

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for _, rest := range items[i:] {
				report.fail(rest.ID, scanning.NewError(scanning.KindCanceled, s.scanner.Name(), err))
			}
			report.Elapsed = s.timeSource.Now().Sub(start)
			log.Warn().
				Int("processed", i).
				Int("canceled", len(items)-i).
				Msg("batch canceled")
			return report, err
		}

		if s.progress != nil {
			s.progress(i+1, len(items), item.ID)
		}

		if _, err := s.process(ctx, log, item.ID, item.Data, item.ContentType, credential); err != nil {
			report.fail(item.ID, err)
			continue
		}
		report.SuccessCount++
	}

	report.Elapsed = s.timeSource.Now().Sub(start)
	log.Info().
		Int("total", report.Total).
		Int("succeeded", report.SuccessCount).
		Int("failed", report.FailureCount).
		Dur("elapsed", report.Elapsed).
		Msg("batch finished")

	return report, nil
}

// ProcessOne extracts a single item and upserts it into the store.
// On failure any earlier entry for id is left as it was.
func (s *Service) ProcessOne(ctx context.Context, id string, data []byte, contentType string, credential string) (*invoice.Document, error) {
	log := logger.WithComponent("batch").With().Str("provider", s.scanner.Name()).Logger()

	if strings.TrimSpace(credential) == "" {
		return nil, scanning.NewError(scanning.KindInvalidCredential, s.scanner.Name(), scanning.ErrEmptyCredential)
	}
	return s.process(ctx, log, id, data, contentType, credential)
}

func (s *Service) process(ctx context.Context, log zerolog.Logger, id string, data []byte, contentType, credential string) (*invoice.Document, error) {
	start := s.timeSource.Now()
	itemLog := log.With().Str("identifier", id).Logger()
	itemLog.Debug().Int("file_size", len(data)).Str("content_type", contentType).Msg("extracting invoice")

	doc, err := s.scanner.Extract(ctx, data, contentType, credential)
	if err != nil {
		itemLog.Error().
			Err(err).
			Str("kind", string(scanning.KindOf(err))).
			Dur("elapsed", s.timeSource.Now().Sub(start)).
			Msg("extraction failed")
		return nil, err
	}

	s.store.Put(id, *doc)
	stored, _ := s.store.Get(id)
	itemLog.Info().
		Str("invoice_number", doc.Invoice.Header.InvoiceNumber).
		Dur("elapsed", s.timeSource.Now().Sub(start)).
		Msg("invoice extracted")

	return &stored, nil
}
