package chi

import (
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// ErrorCode is the machine-readable error kind of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeInvalidQuery     ErrorCode = "invalid_query"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeContentNotFound  ErrorCode = "content_not_found"
	CodeNotFound         ErrorCode = "not_found"
	CodeQueryTooBroad    ErrorCode = "query_too_broad"
	CodeQueryTimeout     ErrorCode = "query_timeout"
	CodeQueryFailed      ErrorCode = "query_failed"
	CodeNotImplemented   ErrorCode = "not_implemented"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Element string    `json:"element,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// SearchResponse is one page of a content search.
type SearchResponse struct {
	IDs        []content.ID                `json:"ids"`
	Members    map[content.ID][]content.ID `json:"members"`
	Total      int                         `json:"total"`
	Offset     int                         `json:"offset"`
	Limit      int                         `json:"limit"`
	Incomplete bool                        `json:"incomplete"`
}

// ContentResponse is a stored index document.
type ContentResponse struct {
	*index.Document
	TitleSort string `json:"titleSort,omitempty"`
}

// BatchIndexRequest is the body of POST /v1/content/batch.
type BatchIndexRequest struct {
	Items []content.Content `json:"items"`
}

// BatchResultItem is the outcome of one batch item.
type BatchResultItem struct {
	ID     content.ID     `json:"id"`
	Status string         `json:"status"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// BatchIndexResponse is the body returned by POST /v1/content/batch.
type BatchIndexResponse struct {
	Items     []BatchResultItem `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// GroupResponse reports a group projection.
type GroupResponse struct {
	ID      content.ID `json:"id"`
	Members int        `json:"members"`
	Skipped int        `json:"skipped"`
}

// EquivalenceRequest is the body of PUT /v1/equivalence/{canonical}.
type EquivalenceRequest struct {
	Members []content.ID `json:"members"`
}

// EquivalenceResponse reports an equivalence assignment.
type EquivalenceResponse struct {
	Canonical content.ID   `json:"canonical"`
	Members   []content.ID `json:"members"`
	Skipped   int          `json:"skipped"`
}
