package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/leasecheck/internal/assessment"
	"github.com/opensource-finance/leasecheck/internal/domain"
	"github.com/opensource-finance/leasecheck/internal/repository"
	"github.com/opensource-finance/leasecheck/internal/rules"
)

// maxRecordBytes bounds an uploaded lease record.
const maxRecordBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *assessment.Processor
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	processor := deps.Processor
	if processor == nil {
		processor = assessment.NewProcessor(nil, deps.Engine)
	}
	return &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		engine:    deps.Engine,
		processor: processor,
		version:   version,
	}
}

// readRecord decodes the request body as an extracted lease record.
func readRecord(w http.ResponseWriter, r *http.Request) ([]byte, *domain.LeaseRecord, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "lease record too large")
		return nil, nil, false
	}

	rec, err := domain.DecodeLeaseRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return nil, nil, false
	}
	return body, rec, true
}

// Analyze handles POST /analyze. The body is the extracted lease record.
// The document and its assessment are stored and the assessment is
// published for downstream consumers.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	body, rec, ok := readRecord(w, r)
	if !ok {
		return
	}

	docID := r.URL.Query().Get("documentId")
	if docID == "" {
		docID = uuid.New().String()
	}

	if h.repo != nil {
		doc := &domain.LeaseDocument{
			ID:        docID,
			TenantID:  tenantID,
			Source:    r.URL.Query().Get("source"),
			Record:    body,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.repo.SaveDocument(ctx, tenantID, doc); err != nil {
			slog.Error("failed to save document", "document_id", docID, "error", err)
		}
	}

	a := h.processor.Process(ctx, &assessment.Input{
		TenantID:   tenantID,
		DocumentID: docID,
		TraceID:    traceID,
		Record:     rec,
		StartTime:  start,
	})

	if h.repo != nil {
		if err := h.repo.SaveAssessment(ctx, tenantID, a); err != nil {
			slog.Error("failed to save assessment", "assessment_id", a.ID, "error", err)
		}
	}

	resp := a.ToResponse()
	h.publish(r, tenantID, a, resp)

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) publish(r *http.Request, tenantID string, a *domain.Assessment, resp *domain.AssessmentResponse) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := h.bus.Publish(r.Context(), tenantID, domain.TopicAssessmentCompleted, payload); err != nil {
		slog.Warn("failed to publish assessment", "assessment_id", a.ID, "error", err)
	}
	if assessment.NeedsReview(a) {
		if err := h.bus.Publish(r.Context(), tenantID, domain.TopicAssessmentReview, payload); err != nil {
			slog.Warn("failed to publish review", "assessment_id", a.ID, "error", err)
		}
	}
}

// Score handles POST /score: the stateless fairness verdict only.
// Nothing is stored and tenant clause rules are not applied.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.processor.Scorer.Analyze(rec))
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "healthy"

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// ListAssessments returns the tenant's most recent assessments.
// Optional ?limit= caps the result.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.repo.ListAssessments(ctx, GetTenantID(ctx), limit)
	if err != nil {
		slog.Error("failed to list assessments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}

	out := make([]*domain.AssessmentResponse, len(list))
	for i, a := range list {
		out[i] = a.ToResponse()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": out,
		"count":       len(out),
	})
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	a, err := h.repo.GetAssessment(ctx, GetTenantID(ctx), id)
	if err != nil {
		h.lookupFailed(w, "assessment", id, err)
		return
	}
	writeJSON(w, http.StatusOK, a.ToResponse())
}

// DocumentResponse is a stored lease document with its record inline.
type DocumentResponse struct {
	*domain.LeaseDocument
	Record json.RawMessage `json:"record"`
}

// GetDocument retrieves a stored lease document by ID.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	doc, err := h.repo.GetDocument(ctx, GetTenantID(ctx), id)
	if err != nil {
		h.lookupFailed(w, "document", id, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{LeaseDocument: doc, Record: doc.Record})
}

// GetHeuristics returns the scoring table in effect.
func (h *Handler) GetHeuristics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"heuristics":      h.processor.Scorer.Heuristics(),
		"reviewThreshold": h.processor.ReviewThreshold,
		"engineVersion":   assessment.EngineVersion,
	})
}

// ListRules returns the clause rules applied to the tenant: its own rules
// and the global ones, ordered by ID.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	tenantID := GetTenantID(r.Context())

	visible := make([]*domain.ClauseRule, 0)
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.TenantID == "" || rule.TenantID == tenantID {
			visible = append(visible, rule)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].ID != visible[j].ID {
			return visible[i].ID < visible[j].ID
		}
		return visible[i].TenantID < visible[j].TenantID
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": visible,
		"count": len(visible),
	})
}

// GetRule returns a rule visible to the tenant. Stored but disabled rules
// are found through the repository.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	var global *domain.ClauseRule
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID != ruleID {
			continue
		}
		if rule.TenantID == tenantID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
		if rule.TenantID == "" {
			global = rule
		}
	}

	if h.repo != nil {
		if rule, err := h.repo.GetClauseRule(ctx, tenantID, ruleID); err == nil {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	if global != nil {
		writeJSON(w, http.StatusOK, global)
		return
	}

	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateRuleRequest is the request body for creating a clause rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Expression  string `json:"expression"`
	Clause      string `json:"clause"`
	Reason      string `json:"reason"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// CreateRule validates, stores and applies a tenant clause rule.
// Rules are enabled unless the request says otherwise.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.ID == "" || req.Expression == "" || req.Clause == "" {
		writeError(w, http.StatusBadRequest, "id, expression and clause are required")
		return
	}

	rule := &domain.ClauseRule{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Clause:      req.Clause,
		Reason:      req.Reason,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}
	if rule.Name == "" {
		rule.Name = rule.Clause
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveClauseRule(ctx, tenantID, rule); err != nil {
			slog.Error("failed to save clause rule", "id", rule.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save rule")
			return
		}
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
			return
		}
	} else {
		h.engine.UnloadRule(tenantID, rule.ID)
	}

	slog.Info("clause rule saved",
		"tenant_id", tenantID,
		"id", rule.ID,
		"version", rule.Version,
		"enabled", rule.Enabled,
	)
	writeJSON(w, http.StatusCreated, rule)
}

// DeleteRule disables a tenant rule in storage and in the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if h.repo != nil {
		if err := h.repo.DeleteClauseRule(ctx, tenantID, ruleID); err != nil {
			h.lookupFailed(w, "rule", ruleID, err)
			return
		}
	}
	h.engine.UnloadRule(tenantID, ruleID)

	slog.Info("clause rule deleted", "tenant_id", tenantID, "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     ruleID,
		"status": "deleted",
	})
}

// ReloadRules replaces the tenant's loaded rules with the stored ones.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) || !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	stored, err := h.repo.ListClauseRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list clause rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.engine.ReloadTenant(tenantID, stored); err != nil {
		slog.Error("failed to reload clause rules", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("clause rules reloaded", "tenant_id", tenantID, "count", len(stored))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(stored),
	})
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

func (h *Handler) requireEngine(w http.ResponseWriter) bool {
	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return false
	}
	return true
}

func (h *Handler) lookupFailed(w http.ResponseWriter, kind, id string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, kind+" not found")
		return
	}
	slog.Error("lookup failed", "kind", kind, "id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to load "+kind)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
