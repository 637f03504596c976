package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atlasmeta/contentdex/internal/domain"
	dombatch "github.com/atlasmeta/contentdex/internal/domain/batch"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/logger"
)

// IndexContent handles PUT /v1/content/{id}.
func (s *Server) IndexContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var c content.Content
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if c.ID == 0 {
		c.ID = id
	}
	if c.ID != id {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("body id %d does not match path id %d", c.ID, id))
		return
	}

	ctx := logger.With(r.Context(), zap.Int64("content_id", int64(id)))
	if err := s.indexer.Index(ctx, &c); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	doc, err := s.contents.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(doc))
}

// GetContent handles GET /v1/content/{id}.
func (s *Server) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := s.contents.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(doc))
}

// BatchIndex handles POST /v1/content/batch.
func (s *Server) BatchIndex(w http.ResponseWriter, r *http.Request) {
	var req BatchIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "items must not be empty")
		return
	}

	results := s.indexer.IndexBatch(r.Context(), req.Items)

	items := make([]BatchResultItem, len(results))
	for i, res := range results {
		items[i] = batchResultItem(res)
	}
	succeeded, failed := dombatch.Tally(results)

	writeJSON(w, http.StatusOK, BatchIndexResponse{
		Items:     items,
		Succeeded: succeeded,
		Failed:    failed,
	})
}

// IndexGroup handles PUT /v1/groups/{id}.
func (s *Server) IndexGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var g content.Group
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	g.ID = id

	skipped, err := s.indexer.IndexGroup(r.Context(), &g)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GroupResponse{ID: id, Members: len(g.Members), Skipped: skipped})
}

// AssignEquivalence handles PUT /v1/equivalence/{canonical}.
func (s *Server) AssignEquivalence(w http.ResponseWriter, r *http.Request) {
	canonical, ok := pathID(w, r, "canonical")
	if !ok {
		return
	}

	var req EquivalenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	skipped, err := s.indexer.AssignEquivalence(r.Context(), canonical, req.Members)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	members := req.Members
	if members == nil {
		members = []content.ID{}
	}
	writeJSON(w, http.StatusOK, EquivalenceResponse{Canonical: canonical, Members: members, Skipped: skipped})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (content.ID, bool) {
	id, err := content.ParseID(chirouter.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

func contentResponse(doc *index.Document) ContentResponse {
	return ContentResponse{Document: doc, TitleSort: doc.TitleSort()}
}

func batchResultItem(r dombatch.Result) BatchResultItem {
	item := BatchResultItem{
		ID:     r.ID(),
		Status: string(r.Status()),
	}
	if r.Err() != nil {
		item.Error = &ErrorResponse{
			Code:    batchErrorCode(r.Err()),
			Message: safeDomainMessage(r.Err()),
		}
	}
	return item
}

func batchErrorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, domain.ErrInvalidContent):
		return CodeValidationFailed
	case errors.Is(err, domain.ErrContentNotFound):
		return CodeContentNotFound
	default:
		return CodeInternalError
	}
}
