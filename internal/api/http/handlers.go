package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/internal/ingest"
	"github.com/devlens/devlens/internal/observability"
	"github.com/devlens/devlens/internal/pipeline"
	"github.com/devlens/devlens/pkg/types"
)

// DefaultSourceFile names analyses saved without a source file.
const DefaultSourceFile = "upload"

// Analyzer runs the analysis pipeline over a batch.
type Analyzer interface {
	Run(ctx context.Context, rows []types.RawEvent) (*types.Analysis, error)
}

// ResultStore persists analyses.
type ResultStore interface {
	Create(ctx context.Context, sourceFile string, analysis *types.Analysis) (*types.AnalysisRecord, error)
	Get(ctx context.Context, id string) (*types.AnalysisRecord, *types.Analysis, error)
	List(ctx context.Context, limit, offset int) ([]*types.AnalysisRecord, error)
	Rename(ctx context.Context, id, sourceFile string) (*types.AnalysisRecord, error)
	Delete(ctx context.Context, id string) error
}

// Handlers serves the DevLens REST API.
type Handlers struct {
	analyzer     Analyzer
	store        ResultStore
	behaviors    *observability.BehaviorStats
	maxBodyBytes int64
}

// NewHandlers creates the API handlers. behaviors may be nil.
func NewHandlers(analyzer Analyzer, store ResultStore, behaviors *observability.BehaviorStats, maxBodyBytes int64) *Handlers {
	return &Handlers{
		analyzer:     analyzer,
		store:        store,
		behaviors:    behaviors,
		maxBodyBytes: maxBodyBytes,
	}
}

// Analyze handles POST /v1/analyze. A JSON object body carries rows
// inline; CSV and JSON-lines bodies are read by content type with the
// source name and save flag taken from the query string.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	h.limitBody(w, r)

	req, err := h.decodeAnalyzeRequest(r)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	analysis, err := h.analyzer.Run(r.Context(), req.Rows)
	if err == nil {
		err = pipeline.RequireClassified(analysis)
	}
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	resp := AnalyzeResponse{RequestID: requestID, Analysis: analysis}
	if req.Save {
		name := strings.TrimSpace(req.SourceFile)
		if name == "" {
			name = DefaultSourceFile
		}
		rec, err := h.store.Create(r.Context(), name, analysis)
		if err != nil {
			writeDomainError(w, err, requestID)
			return
		}
		resp.ID = rec.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) decodeAnalyzeRequest(r *http.Request) (*AnalyzeRequest, error) {
	format, ok := ingest.FormatFromContentType(r.Header.Get("Content-Type"))
	if !ok {
		format = ingest.FormatJSON
	}

	if format == ingest.FormatJSON {
		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, dlerrors.Wrap(dlerrors.ErrCategoryValidation, dlerrors.CodeInvalidRequest,
				"invalid request body", err)
		}
		if err := validateRequest(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	rows, err := ingest.Read(r.Body, format)
	if err != nil {
		return nil, err
	}
	save, _ := strconv.ParseBool(r.URL.Query().Get("save"))
	return &AnalyzeRequest{
		SourceFile: r.URL.Query().Get("source"),
		Rows:       rows,
		Save:       save,
	}, nil
}

// CreateAnalysis handles POST /v1/analyses.
func (h *Handlers) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	h.limitBody(w, r)

	var req CreateAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, dlerrors.Wrap(dlerrors.ErrCategoryValidation, dlerrors.CodeInvalidRequest,
			"invalid request body", err), requestID)
		return
	}
	if err := validateRequest(&req); err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	generatedAt, err := parseGeneratedAt(req.GeneratedAt)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	analysis := *req.Analysis
	analysis.RecordCount = *req.RecordCount
	analysis.GeneratedAt = generatedAt

	rec, err := h.store.Create(r.Context(), req.SourceFile, &analysis)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusCreated, CreateAnalysisResponse{ID: rec.ID})
}

// ListAnalyses handles GET /v1/analyses?limit=&offset=.
func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	records, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Analyses: records, Limit: limit, Offset: offset})
}

// GetAnalysis handles GET /v1/analyses/{id}.
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	rec, analysis, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, AnalysisDetail{AnalysisRecord: rec, Analysis: analysis})
}

// RenameAnalysis handles PATCH /v1/analyses/{id}.
func (h *Handlers) RenameAnalysis(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	h.limitBody(w, r)

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// An unreadable body renames to nothing, which fails below.
		req = RenameRequest{}
	}
	if err := validateRequest(&req); err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	rec, err := h.store.Rename(r.Context(), r.PathValue("id"), req.SourceFile)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteAnalysis handles DELETE /v1/analyses/{id}.
func (h *Handlers) DeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true})
}

// BehaviorStats handles GET /v1/stats/behaviors?top=.
func (h *Handlers) BehaviorStats(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	top, err := queryInt(r, "top", 10)
	if err != nil {
		writeDomainError(w, err, requestID)
		return
	}

	resp := map[string]interface{}{"runs": int64(0), "behaviors": []observability.CodeStats{}}
	if h.behaviors != nil {
		resp["runs"] = h.behaviors.Runs()
		resp["behaviors"] = h.behaviors.TopBehaviors(top)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) limitBody(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dlerrors.NewValidationError(dlerrors.CodeInvalidRequest,
			fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}
