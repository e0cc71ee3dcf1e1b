package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/leasecheck/internal/assessment"
	"github.com/opensource-finance/leasecheck/internal/bus"
	"github.com/opensource-finance/leasecheck/internal/cache"
	"github.com/opensource-finance/leasecheck/internal/domain"
	"github.com/opensource-finance/leasecheck/internal/quota"
	"github.com/opensource-finance/leasecheck/internal/repository"
	"github.com/opensource-finance/leasecheck/internal/rules"
	"github.com/opensource-finance/leasecheck/internal/scoring"
)

const toyotaRecord = `{"monthly_lease_amount": 20000, "lease_duration": 36, "vehicle_details": {"make": "Toyota"}}`

type testEnv struct {
	server *Server
	repo   domain.Repository
	bus    *bus.ChannelBus
	engine *rules.Engine
}

// newTestEnv wires a server over an in-memory sqlite repository.
func newTestEnv(t *testing.T, q *quota.Limiter) *testEnv {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(10)
	t.Cleanup(func() { eventBus.Close() })

	engine, _ := rules.NewEngine(5)
	engine.LoadRules(rules.BuiltinRules())

	lru := cache.NewLRUCache(100, time.Minute)
	processor := assessment.NewProcessor(scoring.NewScorer(nil), engine)
	processor.Cache = lru

	cfg := domain.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30}
	server := NewServer(cfg, Deps{
		Repo:      repo,
		Cache:     lru,
		Bus:       eventBus,
		Engine:    engine,
		Processor: processor,
		Quota:     q,
	}, "test-v1")

	return &testEnv{server: server, repo: repo, bus: eventBus, engine: engine}
}

func (e *testEnv) do(t *testing.T, method, path, tenant, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(TenantIDHeader, tenant)
	}
	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("ScoresAndStores", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/analyze?documentId=doc-001&source=toyota.pdf", "tenant-001", toyotaRecord)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		resp := decode[domain.AssessmentResponse](t, rr)
		if resp.ContractFairnessScore != 54 {
			t.Errorf("expected score 54, got %d", resp.ContractFairnessScore)
		}
		if resp.Status != domain.StatusReview {
			t.Errorf("expected REVIEW, got %s", resp.Status)
		}
		if resp.DocumentID != "doc-001" || resp.TenantID != "tenant-001" {
			t.Errorf("unexpected ids %+v", resp)
		}
		if resp.AssessmentID == "" {
			t.Error("expected assessment id")
		}
		if resp.FairnessBreakdown.AssetValueAlignment != 100 {
			t.Errorf("asset alignment = %d, want 100", resp.FairnessBreakdown.AssetValueAlignment)
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected trace id header")
		}

		stored, err := env.repo.GetAssessment(context.Background(), "tenant-001", resp.AssessmentID)
		if err != nil {
			t.Fatalf("assessment not stored: %v", err)
		}
		if stored.Result.ContractFairnessScore != 54 {
			t.Errorf("stored score = %d", stored.Result.ContractFairnessScore)
		}
	})

	t.Run("EmptyObject", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/analyze", "tenant-001", `{}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[domain.AssessmentResponse](t, rr)
		if resp.ContractFairnessScore != 74 {
			t.Errorf("expected score 74, got %d", resp.ContractFairnessScore)
		}
		// no core flags, so the builtin missing-payment rule flag does not force review
		if resp.Status != domain.StatusFair {
			t.Errorf("expected FAIR, got %s", resp.Status)
		}
		if !strings.Contains(rr.Body.String(), "Missing Payment Terms") {
			t.Errorf("expected builtin rule flag in %s", rr.Body.String())
		}
	})

	t.Run("NonObjectScoredAsEmpty", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/analyze", "tenant-001", `[1, 2, 3]`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if resp := decode[domain.AssessmentResponse](t, rr); resp.ContractFairnessScore != 74 {
			t.Errorf("expected score 74, got %d", resp.ContractFairnessScore)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/analyze", "tenant-001", `{"monthly_lease_amount":`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		if resp := decode[map[string]string](t, rr); resp["error"] == "" {
			t.Error("expected error message")
		}
	})

	t.Run("MissingTenant", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/analyze", "", `{}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidTenant", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/analyze", "tenant.*", `{}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("PublishesReview", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		env.bus.Subscribe(context.Background(), "tenant-pub", domain.TopicAssessmentReview, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})

		env.do(t, http.MethodPost, "/analyze", "tenant-pub", toyotaRecord)

		select {
		case msg := <-got:
			var resp domain.AssessmentResponse
			json.Unmarshal(msg.Payload, &resp)
			if resp.ContractFairnessScore != 54 {
				t.Errorf("published score = %d", resp.ContractFairnessScore)
			}
		case <-time.After(time.Second):
			t.Fatal("review not published")
		}
	})

	t.Run("CacheHitOnRepeat", func(t *testing.T) {
		env.do(t, http.MethodPost, "/analyze", "tenant-cache", `{"lease_duration": 24}`)
		rr := env.do(t, http.MethodPost, "/analyze", "tenant-cache", `{"lease_duration": 24}`)
		if resp := decode[domain.AssessmentResponse](t, rr); !resp.Metadata.CacheHit {
			t.Error("expected cache hit on repeated record")
		}
	})
}

func TestScoreEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/score", "tenant-001", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	want := `{"contract_fairness_score":74,"red_flag_clauses":[],"fairness_breakdown":{"financial_efficiency":50,"asset_value_alignment":100,"contract_flexibility":70,"operational_transparency":100}}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Errorf("body = %s\nwant %s", got, want)
	}

	if list, _ := env.repo.ListAssessments(context.Background(), "tenant-001", 10); len(list) != 0 {
		t.Errorf("score must not store assessments, found %d", len(list))
	}
}

func TestAssessmentAndDocumentEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	first := decode[domain.AssessmentResponse](t, env.do(t, http.MethodPost, "/analyze?documentId=doc-a&source=a.pdf", "tenant-001", toyotaRecord))
	env.do(t, http.MethodPost, "/analyze?documentId=doc-b", "tenant-001", `{}`)

	t.Run("GetAssessment", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/assessments/"+first.AssessmentID, "tenant-001", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if resp := decode[domain.AssessmentResponse](t, rr); resp.DocumentID != "doc-a" {
			t.Errorf("document id = %q", resp.DocumentID)
		}
	})

	t.Run("GetAssessmentOtherTenant", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/assessments/"+first.AssessmentID, "tenant-002", "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ListAssessments", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/assessments?limit=1", "tenant-001", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[struct {
			Assessments []domain.AssessmentResponse `json:"assessments"`
			Count       int                         `json:"count"`
		}](t, rr)
		if resp.Count != 1 || len(resp.Assessments) != 1 {
			t.Errorf("expected 1 assessment, got %d", resp.Count)
		}

		if rr := env.do(t, http.MethodGet, "/assessments?limit=zero", "tenant-001", ""); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for bad limit, got %d", rr.Code)
		}
	})

	t.Run("GetDocument", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/documents/doc-a", "tenant-001", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[struct {
			ID     string         `json:"id"`
			Source string         `json:"source"`
			Record map[string]any `json:"record"`
		}](t, rr)
		if resp.ID != "doc-a" || resp.Source != "a.pdf" {
			t.Errorf("unexpected document %+v", resp)
		}
		if resp.Record["lease_duration"] != float64(36) {
			t.Errorf("record not returned inline: %v", resp.Record)
		}
	})

	t.Run("DocumentNotFound", func(t *testing.T) {
		if rr := env.do(t, http.MethodGet, "/documents/missing", "tenant-001", ""); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestHeuristicsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/heuristics", "tenant-001", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	resp := decode[map[string]any](t, rr)
	if resp["reviewThreshold"] != float64(60) {
		t.Errorf("reviewThreshold = %v", resp["reviewThreshold"])
	}
	if resp["engineVersion"] != assessment.EngineVersion {
		t.Errorf("engineVersion = %v", resp["engineVersion"])
	}
	if _, ok := resp["heuristics"].(map[string]any); !ok {
		t.Errorf("heuristics missing: %v", resp["heuristics"])
	}
}

func TestRuleEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	tenant := "tenant-rules"

	t.Run("CreateRule", func(t *testing.T) {
		body := `{"id": "short-term", "expression": "present.term && term < 12.0", "clause": "Very Short Term", "reason": "Under a year."}`
		rr := env.do(t, http.MethodPost, "/rules", tenant, body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		rule := decode[domain.ClauseRule](t, rr)
		if !rule.Enabled || rule.TenantID != tenant || rule.Version != "1.0.0" {
			t.Errorf("unexpected rule %+v", rule)
		}

		resp := decode[domain.AssessmentResponse](t, env.do(t, http.MethodPost, "/analyze", tenant, `{"lease_duration": 6, "monthly_lease_amount": 1000}`))
		found := false
		for _, f := range resp.RedFlagClauses {
			if f.Clause == "Very Short Term" {
				found = true
			}
		}
		if !found {
			t.Errorf("tenant rule not applied: %+v", resp.RedFlagClauses)
		}

		other := decode[domain.AssessmentResponse](t, env.do(t, http.MethodPost, "/analyze", "tenant-other", `{"lease_duration": 6, "monthly_lease_amount": 1000}`))
		for _, f := range other.RedFlagClauses {
			if f.Clause == "Very Short Term" {
				t.Error("tenant rule leaked to another tenant")
			}
		}
	})

	t.Run("CreateInvalidRule", func(t *testing.T) {
		for _, body := range []string{
			`{"id": "bad", "expression": "term +", "clause": "Bad"}`,
			`{"id": "num", "expression": "term", "clause": "Not Bool"}`,
			`{"id": "noclause", "expression": "true"}`,
			`not json`,
		} {
			if rr := env.do(t, http.MethodPost, "/rules", tenant, body); rr.Code != http.StatusBadRequest {
				t.Errorf("%s: expected status 400, got %d", body, rr.Code)
			}
		}
	})

	t.Run("ListAndGet", func(t *testing.T) {
		resp := decode[struct {
			Rules []domain.ClauseRule `json:"rules"`
			Count int                 `json:"count"`
		}](t, env.do(t, http.MethodGet, "/rules", tenant, ""))
		// four builtin global rules plus the tenant rule
		if resp.Count != 5 {
			t.Errorf("expected 5 rules, got %d", resp.Count)
		}

		if rr := env.do(t, http.MethodGet, "/rules/short-term", tenant, ""); rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, "/rules/short-term", "tenant-other", ""); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for other tenant, got %d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, "/rules/long-term", tenant, ""); rr.Code != http.StatusOK {
			t.Errorf("expected global rule visible, got %d", rr.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		env.engine.UnloadRule(tenant, "short-term")

		rr := env.do(t, http.MethodPost, "/rules/reload", tenant, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if env.engine.CountFor(tenant) != 5 {
			t.Errorf("reload did not restore tenant rule, count %d", env.engine.CountFor(tenant))
		}
		if env.engine.CountFor("tenant-other") != 4 {
			t.Errorf("reload touched global rules")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/rules/short-term", tenant, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if env.engine.CountFor(tenant) != 4 {
			t.Errorf("deleted rule still loaded")
		}

		if rr := env.do(t, http.MethodDelete, "/rules/short-term", tenant, ""); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on second delete, got %d", rr.Code)
		}
	})
}

func TestQuotaMiddleware(t *testing.T) {
	lru := cache.NewLRUCache(100, time.Minute)
	limiter := quota.NewLimiter(domain.QuotaConfig{Enabled: true, Limit: 2, Window: time.Hour}, lru)
	env := newTestEnv(t, limiter)

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, "/score", "tenant-q", `{}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, rr.Code)
		}
	}

	rr := env.do(t, http.MethodPost, "/analyze", "tenant-q", `{}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining = %q", rr.Header().Get("X-RateLimit-Remaining"))
	}

	// reads are not metered
	if rr := env.do(t, http.MethodGet, "/heuristics", "tenant-q", ""); rr.Code != http.StatusOK {
		t.Errorf("expected status 200 for read, got %d", rr.Code)
	}
	// other tenants are unaffected
	if rr := env.do(t, http.MethodPost, "/score", "tenant-r", `{}`); rr.Code != http.StatusOK {
		t.Errorf("expected status 200 for other tenant, got %d", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	resp := decode[struct {
		Status  string            `json:"status"`
		Version string            `json:"version"`
		Checks  map[string]string `json:"checks"`
	}](t, rr)
	if resp.Status != "healthy" || resp.Version != "test-v1" {
		t.Errorf("unexpected health %+v", resp)
	}
	if resp.Checks["repository"] != "ok" || resp.Checks["bus"] != "ok" {
		t.Errorf("unexpected checks %v", resp.Checks)
	}

	if rr := env.do(t, http.MethodGet, "/ready", "", ""); rr.Code != http.StatusOK {
		t.Errorf("expected ready 200, got %d", rr.Code)
	}

	env.bus.Close()
	if resp := decode[map[string]any](t, env.do(t, http.MethodGet, "/health", "", "")); resp["status"] != "degraded" {
		t.Errorf("expected degraded after bus close, got %v", resp["status"])
	}
}

func TestMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("CORSPreflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
		req.Header.Set("Origin", "https://example.test")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "https://example.test" {
			t.Errorf("unexpected allow origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
		}
	})

	t.Run("RequestIDEchoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Header().Get(RequestIDHeader) != "req-123" {
			t.Errorf("request id = %q", rr.Header().Get(RequestIDHeader))
		}
	})

	t.Run("RecoverFromPanic", func(t *testing.T) {
		h := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("ValidTenantID", func(t *testing.T) {
		for id, want := range map[string]bool{
			"tenant-001":           true,
			"_global":              true,
			"":                     false,
			"a.b":                  false,
			"a b":                  false,
			strings.Repeat("x", 65): false,
		} {
			if got := validTenantID(id); got != want {
				t.Errorf("validTenantID(%q) = %v, want %v", id, got, want)
			}
		}
	})
}
