package batch

import (
	"bytes"
	"fmt"
	"time"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/logger"
)

// ExportOptions selects the files written by Export
type ExportOptions struct {
	// Archive also writes the entries into a bbolt file
	Archive bool
}

// Export writes the bulk JSON, the CSV and XLSX summaries and optionally a bbolt
// archive of entries into storage, all named with the same timestamp.
// It returns the paths written, in that order.
func Export(storage Storage, entries []invoice.StoreEntry, now time.Time, opts ExportOptions) ([]string, error) {
	log := logger.WithComponent("export")
	var paths []string

	body, err := invoice.StoreToJSON(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding invoices: %w", err)
	}
	path, err := storage.Save(invoice.ExportFileName("invoice_data", "json", now), []byte(body+"\n"))
	if err != nil {
		return nil, fmt.Errorf("saving json export: %w", err)
	}
	paths = append(paths, path)

	var csvBuf bytes.Buffer
	if err := invoice.WriteSummaryCSV(&csvBuf, entries); err != nil {
		return paths, fmt.Errorf("building csv summary: %w", err)
	}
	path, err = storage.Save(invoice.ExportFileName("invoice_summary", "csv", now), csvBuf.Bytes())
	if err != nil {
		return paths, fmt.Errorf("saving csv summary: %w", err)
	}
	paths = append(paths, path)

	var xlsxBuf bytes.Buffer
	if err := invoice.WriteSummaryXLSX(&xlsxBuf, entries); err != nil {
		return paths, fmt.Errorf("building xlsx summary: %w", err)
	}
	path, err = storage.Save(invoice.ExportFileName("invoice_summary", "xlsx", now), xlsxBuf.Bytes())
	if err != nil {
		return paths, fmt.Errorf("saving xlsx summary: %w", err)
	}
	paths = append(paths, path)

	if opts.Archive {
		path = storage.Path(invoice.ExportFileName("invoice_archive", "db", now))
		if err := invoice.WriteArchive(path, entries); err != nil {
			return paths, fmt.Errorf("writing archive: %w", err)
		}
		paths = append(paths, path)
	}

	log.Info().Int("invoices", len(entries)).Strs("files", paths).Msg("export written")
	return paths, nil
}
