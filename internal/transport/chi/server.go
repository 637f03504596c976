package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atlasmeta/contentdex/internal/db"
	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/domain/query"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
	"github.com/atlasmeta/contentdex/internal/logger"
	healthuc "github.com/atlasmeta/contentdex/internal/usecase/health"
	indexeruc "github.com/atlasmeta/contentdex/internal/usecase/indexer"
	"github.com/atlasmeta/contentdex/internal/version"
)

// Default pagination when no limits are configured.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Querier runs an attribute query and returns one page of results.
type Querier interface {
	Query(
		ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
		sel query.Selection, params *query.IndexQueryParams,
	) (*result.IndexQueryResult, error)
}

// QueryFunc adapts a function to Querier.
type QueryFunc func(
	ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
	sel query.Selection, params *query.IndexQueryParams,
) (*result.IndexQueryResult, error)

// Query calls f.
func (f QueryFunc) Query(
	ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
	sel query.Selection, params *query.IndexQueryParams,
) (*result.IndexQueryResult, error) {
	return f(ctx, qs, publishers, sel, params)
}

// ContentReader reads stored index documents.
type ContentReader interface {
	Get(ctx context.Context, id content.ID) (*index.Document, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API.
type Server struct {
	canonical     Querier
	raw           Querier
	indexer       *indexeruc.Service
	contents      ContentReader
	health        *healthuc.Service
	log           *zap.Logger
	decoder       *schema.Decoder
	now           func() time.Time
	defaultLimit  int
	maxLimit      int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. canonical answers equivalent
// searches, raw answers searches with equivalent=false.
func NewServer(
	canonical, raw Querier,
	indexer *indexeruc.Service,
	contents ContentReader,
	health *healthuc.Service,
	log *zap.Logger,
) *Server {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)

	s := &Server{
		canonical:    canonical,
		raw:          raw,
		indexer:      indexer,
		contents:     contents,
		health:       health,
		log:          log,
		decoder:      dec,
		now:          time.Now,
		defaultLimit: DefaultPageSize,
		maxLimit:     MaxPageSize,
	}
	s.errorHandlers = []errorHandler{
		queryErrorHandler,
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrInvalidContent, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrContentNotFound, http.StatusNotFound, CodeContentNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrQueryTooBroad, http.StatusUnprocessableEntity, CodeQueryTooBroad),
		sentinelHandler(domain.ErrQueryTimeout, http.StatusGatewayTimeout, CodeQueryTimeout),
		sentinelHandler(domain.ErrQueryFailed, http.StatusBadGateway, CodeQueryFailed),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented),
	}
	return s
}

// WithPagination configures the default and maximum page size.
func (s *Server) WithPagination(defaultLimit, maxLimit int) *Server {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	return s
}

// Register mounts every route on r.
func (s *Server) Register(r chirouter.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chirouter.Router) {
		r.Get("/content/search", s.SearchContent)
		r.Post("/content/batch", s.BatchIndex)
		r.Put("/content/{id}", s.IndexContent)
		r.Get("/content/{id}", s.GetContent)
		r.Put("/groups/{id}", s.IndexGroup)
		r.Put("/equivalence/{canonical}", s.AssignEquivalence)
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Version: version.Version,
		Checks:  checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrInvalidContent,
		domain.ErrContentNotFound,
		domain.ErrNotFound,
		domain.ErrQueryTooBroad,
		domain.ErrQueryTimeout,
		domain.ErrQueryFailed,
		domain.ErrNotImplemented,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// queryErrorHandler reports the offending query element of a validation error.
func queryErrorHandler(w http.ResponseWriter, err error, _ string) bool {
	var qe *domain.QueryError
	if !errors.As(err, &qe) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    CodeInvalidQuery,
		Message: qe.Error(),
		Element: qe.Element,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r)
	if op := db.OpOf(err); op != "" {
		log = log.With(zap.String("db_op", op))
	}
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if l, ok := logger.Lookup(r.Context()); ok {
		return l
	}
	return s.log
}
