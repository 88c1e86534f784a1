package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// PatternService is the pattern surface the handlers need
type PatternService interface {
	ListPatterns(ctx context.Context, filter contracts.PatternFilter) (*contracts.PatternList, error)
	GetPattern(ctx context.Context, id string) (*contracts.Pattern, error)
	CreatePattern(ctx context.Context, draft contracts.PatternDraft) (*contracts.Pattern, error)
	UpdatePattern(ctx context.Context, id string, patch contracts.PatternPatch) (*contracts.Pattern, error)
	DeletePattern(ctx context.Context, id string) error
	RunPattern(ctx context.Context, id string, opts contracts.RunOptions) (*contracts.RankedResults, error)
	PreviewDraft(ctx context.Context, draft contracts.PatternDraft, limit int) (*contracts.RankedResults, error)
	ClearCache(ctx context.Context, id string) (int, error)
	DefaultLimit() int
}

// PatternHandler handles pattern API endpoints
// ⭐ SSOT: 패턴 API 핸들러는 이 구조체에서만
type PatternHandler struct {
	service PatternService
	logger  *logger.Logger
}

// NewPatternHandler creates a new pattern handler
func NewPatternHandler(service PatternService, log *logger.Logger) *PatternHandler {
	return &PatternHandler{
		service: service,
		logger:  log,
	}
}

const maxBodyBytes = 1 << 20

// decodeBody decodes a JSON body strictly; validation errors raised while decoding pass through
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if contracts.IsValidation(err) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return contracts.Invalid("body", "request body is empty")
		}
		return contracts.Invalid("body", "invalid JSON: %v", err)
	}
	return nil
}

// ListPatterns returns built-in and custom patterns
// GET /api/patterns?category=value&builtin=true
func (h *PatternHandler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := contracts.PatternFilter{Category: contracts.Category(q.Get("category"))}
	if filter.Category != "" && !filter.Category.Valid() {
		respondServiceError(w, h.logger, contracts.Invalid("category", "unknown category %q", filter.Category))
		return
	}
	if raw := q.Get("builtin"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			respondServiceError(w, h.logger, contracts.Invalid("builtin", "must be true or false"))
			return
		}
		filter.BuiltIn = &b
	}

	list, err := h.service.ListPatterns(r.Context(), filter)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// GetPattern returns one pattern
// GET /api/patterns/{id}
func (h *PatternHandler) GetPattern(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPattern(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// CreatePattern stores a user pattern
// POST /api/patterns
func (h *PatternHandler) CreatePattern(w http.ResponseWriter, r *http.Request) {
	var draft contracts.PatternDraft
	if err := decodeBody(r, &draft); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	p, err := h.service.CreatePattern(r.Context(), draft)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/patterns/"+p.ID)
	respondJSON(w, http.StatusCreated, p)
}

// UpdatePattern patches a user pattern
// PATCH /api/patterns/{id}
func (h *PatternHandler) UpdatePattern(w http.ResponseWriter, r *http.Request) {
	var patch contracts.PatternPatch
	if err := decodeBody(r, &patch); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	p, err := h.service.UpdatePattern(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// DeletePattern removes a user pattern
// DELETE /api/patterns/{id}
func (h *PatternHandler) DeletePattern(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.DeletePattern(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     id,
	})
}

// RunRequest is the optional body of a run. Omitted fields take defaults
// (limit = configured default, use_cache = true); an explicit limit of 0 is kept.
type RunRequest struct {
	Limit    *int  `json:"limit,omitempty"`
	UseCache *bool `json:"use_cache,omitempty"`
}

func (h *PatternHandler) runOptions(r *http.Request) (contracts.RunOptions, error) {
	var req RunRequest
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if err := decodeBody(r, &req); err != nil && !isEmptyBody(err) {
			return contracts.RunOptions{}, err
		}
	}

	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return contracts.RunOptions{}, contracts.Invalid("limit", "must be an integer")
		}
		req.Limit = &n
	}
	if raw := q.Get("use_cache"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return contracts.RunOptions{}, contracts.Invalid("use_cache", "must be true or false")
		}
		req.UseCache = &b
	}

	opts := contracts.RunOptions{Limit: h.service.DefaultLimit(), UseCache: true}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}
	if req.UseCache != nil {
		opts.UseCache = *req.UseCache
	}
	return opts, nil
}

func isEmptyBody(err error) bool {
	var verr *contracts.ValidationError
	return errors.As(err, &verr) && verr.Field == "body" && verr.Message == "request body is empty"
}

// RunPattern evaluates a pattern
// POST /api/patterns/{id}/run   body: {"limit": 20, "use_cache": true} (query params also accepted)
func (h *PatternHandler) RunPattern(w http.ResponseWriter, r *http.Request) {
	opts, err := h.runOptions(r)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	res, err := h.service.RunPattern(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// PreviewRequest is the body of a preview
type PreviewRequest struct {
	Pattern contracts.PatternDraft `json:"pattern"`
	Limit   *int                   `json:"limit,omitempty"`
}

// PreviewPattern evaluates an unsaved pattern
// POST /api/patterns/preview
func (h *PatternHandler) PreviewPattern(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeBody(r, &req); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	limit := h.service.DefaultLimit()
	if req.Limit != nil {
		limit = *req.Limit
	}

	res, err := h.service.PreviewDraft(r.Context(), req.Pattern, limit)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// ClearCache drops cached results of one pattern, or of all patterns
// DELETE /api/patterns/{id}/cache, DELETE /api/cache
func (h *PatternHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	n, err := h.service.ClearCache(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "cleared",
		"patterns": n,
		"message":  fmt.Sprintf("cleared cached results of %d pattern(s)", n),
	})
}
