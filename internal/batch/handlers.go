package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/logger"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

// maxFormSize bounds a multipart upload (high-resolution phone photos are large)
const maxFormSize = int64(50 << 20)

// credentialHeader carries the caller's provider API key
const credentialHeader = "X-API-Key"

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+credentialHeader)
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("encoding response")
	}
}

// writeDocumentJSON writes JSON produced by the invoice package, which keeps
// non-ASCII text literal
func writeDocumentJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	io.WriteString(w, body+"\n")
}

// statusForError maps an extraction failure to an HTTP status
func statusForError(err error) int {
	switch scanning.KindOf(err) {
	case scanning.KindInvalidCredential, scanning.KindInvalidImage:
		return http.StatusBadRequest
	case scanning.KindTransport, scanning.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requestCredential returns the X-API-Key header, or the server default
func (s *Server) requestCredential(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(credentialHeader)); key != "" {
		return key
	}
	return s.credential
}

// contentTypeFor determines an upload's content type from its part header,
// falling back to the file extension
func contentTypeFor(header *multipart.FileHeader) string {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// readUpload reads one multipart file into an Item
func readUpload(header *multipart.FileHeader) (invoice.Item, error) {
	f, err := header.Open()
	if err != nil {
		return invoice.Item{}, fmt.Errorf("opening %s: %w", header.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return invoice.Item{}, fmt.Errorf("reading %s: %w", header.Filename, err)
	}

	return invoice.Item{
		ID:          CleanIdentifier(header.Filename),
		Data:        data,
		ContentType: contentTypeFor(header),
	}, nil
}

// parseUploads parses the multipart form and returns its "file" parts
func parseUploads(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("parsing multipart form")
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return nil, false
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return nil, false
	}
	return files, true
}

// handleUploadInvoices extracts every uploaded file as one batch
func (s *Server) handleUploadInvoices(w http.ResponseWriter, r *http.Request) {
	credential := s.requestCredential(r)
	if credential == "" {
		writeError(w, "An API key is required. Send it in the "+credentialHeader+" header.", http.StatusBadRequest)
		return
	}

	files, ok := parseUploads(w, r)
	if !ok {
		return
	}

	items := make([]invoice.Item, 0, len(files))
	for _, header := range files {
		item, err := readUpload(header)
		if err != nil {
			log := logger.WithComponent("http")
			log.Error().Err(err).Msg("reading upload")
			writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}
		items = append(items, item)
	}

	report, err := s.service.ProcessAll(r.Context(), items, credential)
	if err != nil {
		log := logger.WithComponent("http")
		log.Warn().Err(err).Str("batch_id", report.BatchID).Msg("batch ended early")
	}

	writeJSON(w, http.StatusOK, report)
}

// handleReprocessInvoice re-runs extraction for one identifier, replacing its stored result
func (s *Server) handleReprocessInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	credential := s.requestCredential(r)
	if credential == "" {
		writeError(w, "An API key is required. Send it in the "+credentialHeader+" header.", http.StatusBadRequest)
		return
	}

	files, ok := parseUploads(w, r)
	if !ok {
		return
	}

	item, err := readUpload(files[0])
	if err != nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("reading upload")
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	doc, err := s.service.ProcessOne(r.Context(), id, item.Data, item.ContentType, credential)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	body, err := invoice.ToJSON(*doc)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeDocumentJSON(w, body)
}

// handleListInvoices returns every stored document keyed by identifier
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	body, err := invoice.StoreToJSON(s.service.Store().All())
	if err != nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("encoding store")
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeDocumentJSON(w, body)
}

// handleGetInvoice returns a single stored document
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := s.service.Store().Get(id)
	if !ok {
		writeError(w, "Invoice not found", http.StatusNotFound)
		return
	}

	body, err := invoice.ToJSON(doc)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeDocumentJSON(w, body)
}

// handleClearInvoices drops every stored document
func (s *Server) handleClearInvoices(w http.ResponseWriter, r *http.Request) {
	s.service.Store().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) attachment(w http.ResponseWriter, prefix, ext, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, invoice.ExportFileName(prefix, ext, s.timeSource.Now())))
}

// handleExportJSON downloads the whole store as JSON
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	body, err := invoice.StoreToJSON(s.service.Store().All())
	if err != nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("encoding store")
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.attachment(w, "invoice_data", "json", "application/json; charset=utf-8")
	io.WriteString(w, body+"\n")
}

// handleExportCSV downloads the summary table as CSV
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := invoice.WriteSummaryCSV(&buf, s.service.Store().All()); err != nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("writing summary csv")
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.attachment(w, "invoice_summary", "csv", "text/csv; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleExportXLSX downloads the summary table as a spreadsheet
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := invoice.WriteSummaryXLSX(&buf, s.service.Store().All()); err != nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("writing summary xlsx")
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.attachment(w, "invoice_summary", "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Write(buf.Bytes())
}
