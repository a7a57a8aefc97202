package batch

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zombor/invoice-extractor/internal/logger"
)

// Server exposes the Service and its store over HTTP
type Server struct {
	service    *Service
	basicAuth  BasicAuth
	credential string
	timeSource TimeSource
	router     chi.Router
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// ServerConfig configures a Server
type ServerConfig struct {
	BasicAuth BasicAuth

	// Credential is used for extraction requests that carry no X-API-Key header
	Credential string
}

// NewServer creates a new Server using the wall clock for export file names
func NewServer(service *Service, cfg ServerConfig) *Server {
	return NewServerWithDeps(service, cfg, &defaultTimeSource{})
}

// NewServerWithDeps creates a new Server with a custom time source for testing
func NewServerWithDeps(service *Service, cfg ServerConfig, timeSrc TimeSource) *Server {
	s := &Server{
		service:    service,
		basicAuth:  cfg.BasicAuth,
		credential: cfg.Credential,
		timeSource: timeSrc,
		router:     chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Invoice Extractor"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log := logger.WithComponent("http")
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)
	s.router.Use(corsMiddleware)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/invoices", s.handleListInvoices)
		r.Post("/invoices", s.handleUploadInvoices)
		r.Delete("/invoices", s.handleClearInvoices)
		r.Get("/invoices/{id}", s.handleGetInvoice)
		r.Put("/invoices/{id}", s.handleReprocessInvoice)

		r.Get("/export/invoices.json", s.handleExportJSON)
		r.Get("/export/summary.csv", s.handleExportCSV)
		r.Get("/export/summary.xlsx", s.handleExportXLSX)
	})
}

// Start serves HTTP on addr until ctx is canceled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log := logger.WithComponent("http")
		log.Info().Str("address", addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
