package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"github.com/facet-dev/facet/internal/meta"
	"github.com/facet-dev/facet/internal/repo"
	"github.com/facet-dev/facet/internal/web/query"
	"github.com/facet-dev/facet/internal/web/response"
)

// wholeBodySelector selects the entire request body in the json_path
// query parameter.
const wholeBodySelector = "$"

// Handler serves the projection resource endpoints.
type Handler struct {
	repo *repo.Repository
	meta *meta.Service
	log  *zap.Logger
}

// NewHandler creates a handler over the repository and metadata cache.
func NewHandler(repository *repo.Repository, metaSvc *meta.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{repo: repository, meta: metaSvc, log: log}
}

// List handles GET /{projection}/{entity}
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	projection := chi.URLParam(r, "projection")
	entityName := chi.URLParam(r, "entity")

	params := query.Parse(r.URL.Query())

	page, err := h.repo.FindAll(r.Context(), projection, entityName, params.Filters, params.Pageable)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}

	response.RenderJSON(w, http.StatusOK, page)
}

// Get handles GET /{projection}/{entity}/{id}. Entities not exposed over
// REST are indistinguishable from missing ones.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	projection := chi.URLParam(r, "projection")
	entityName := chi.URLParam(r, "entity")
	id := chi.URLParam(r, "id")

	em, err := h.meta.GetProjectionEntity(r.Context(), projection, entityName)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}
	if !em.REST {
		response.RenderNotFound(w, "Resource not found")
		return
	}

	doc, err := h.repo.FindByID(r.Context(), projection, entityName, id)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}

	response.RenderJSON(w, http.StatusOK, doc)
}

// Create handles POST /{projection}/{entity}. The body may be a single
// JSON object or an array of objects; an optional json_path parameter
// selects the sub-document to convert.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	projection := chi.URLParam(r, "projection")
	entityName := chi.URLParam(r, "entity")

	body, err := readBody(r)
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	selector := r.URL.Query().Get("json_path")
	selected, err := selectDocument(body, selector)
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	switch payload := selected.(type) {
	case map[string]interface{}:
		doc, err := h.repo.Save(r.Context(), projection, entityName, payload)
		if err != nil {
			response.RenderDomainError(w, err)
			return
		}
		response.RenderJSON(w, http.StatusCreated, doc)
	case []interface{}:
		docs := make([]map[string]interface{}, 0, len(payload))
		for _, item := range payload {
			doc, ok := item.(map[string]interface{})
			if !ok {
				response.RenderBadRequest(w, "array items must be JSON objects")
				return
			}
			docs = append(docs, doc)
		}
		if len(docs) == 0 {
			response.RenderBadRequest(w, "empty document array")
			return
		}
		created, err := h.repo.SaveBatch(r.Context(), projection, entityName, docs)
		if err != nil {
			response.RenderDomainError(w, err)
			return
		}
		response.RenderJSON(w, http.StatusCreated, created)
	default:
		response.RenderBadRequest(w, "request body must be a JSON object or array")
	}
}

// Update handles PUT /{projection}/{entity}/{id}. The path id always wins
// over any id carried in the body.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	projection := chi.URLParam(r, "projection")
	entityName := chi.URLParam(r, "entity")
	id := chi.URLParam(r, "id")

	body, err := readBody(r)
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	doc, ok := body.(map[string]interface{})
	if !ok {
		response.RenderBadRequest(w, "request body must be a JSON object")
		return
	}

	updated, err := h.repo.Update(r.Context(), projection, entityName, id, doc)
	if err != nil {
		response.RenderDomainError(w, err)
		return
	}

	response.RenderJSON(w, http.StatusCreated, updated)
}

// Projections handles GET /admin/projections, listing the cached names.
func (h *Handler) Projections(w http.ResponseWriter, r *http.Request) {
	response.RenderJSON(w, http.StatusOK, map[string]interface{}{
		"projections": h.meta.AllProjectionNames(),
	})
}

// InvalidateCache handles POST /admin/cache/invalidate
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.meta.Invalidate()
	h.log.Info("metadata cache invalidated")
	response.RenderJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// ReloadCache handles POST /admin/cache/reload, dropping the cache and
// preloading every known projection.
func (h *Handler) ReloadCache(w http.ResponseWriter, r *http.Request) {
	h.meta.Invalidate()
	if err := h.meta.Preload(r.Context()); err != nil {
		response.RenderError(w, http.StatusInternalServerError, err)
		return
	}
	h.log.Info("metadata cache reloaded")
	response.RenderJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "reloaded",
		"projections": h.meta.AllProjectionNames(),
	})
}

// readBody decodes the request body as arbitrary JSON. Empty bodies are
// rejected.
func readBody(r *http.Request) (interface{}, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(raw) == 0 {
		return nil, errors.New("request body is empty")
	}

	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.New("request body is not valid JSON")
	}
	if body == nil {
		return nil, errors.New("request body is empty")
	}
	return body, nil
}

// selectDocument applies the json_path selector to the decoded body.
// The default selector "$" means the whole body; anything else is a
// JMESPath expression evaluated against it.
func selectDocument(body interface{}, selector string) (interface{}, error) {
	if selector == "" || selector == wholeBodySelector {
		return body, nil
	}

	selected, err := jmespath.Search(selector, body)
	if err != nil {
		return nil, errors.New("invalid json_path expression")
	}
	if selected == nil {
		return nil, errors.New("json_path selected no document")
	}
	return selected, nil
}
