package repository

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "leasecheck-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetDocument", func(t *testing.T) {
		doc := &domain.LeaseDocument{
			ID:     "doc-001",
			Source: "innova-lease.pdf",
			Record: []byte(`{"monthly_lease_amount": "Rs 20,000"}`),
		}
		if err := repo.SaveDocument(ctx, tenantID, doc); err != nil {
			t.Fatalf("SaveDocument failed: %v", err)
		}

		got, err := repo.GetDocument(ctx, tenantID, "doc-001")
		if err != nil {
			t.Fatalf("GetDocument failed: %v", err)
		}
		if got.TenantID != tenantID || got.Source != "innova-lease.pdf" {
			t.Errorf("got %+v", got)
		}
		if string(got.Record) != string(doc.Record) {
			t.Errorf("record = %s", got.Record)
		}
		if got.CreatedAt.IsZero() {
			t.Error("created_at not set")
		}

		doc.Record = []byte(`{}`)
		if err := repo.SaveDocument(ctx, tenantID, doc); err != nil {
			t.Fatalf("re-save failed: %v", err)
		}
		got, _ = repo.GetDocument(ctx, tenantID, "doc-001")
		if string(got.Record) != `{}` {
			t.Errorf("record not replaced: %s", got.Record)
		}
	})

	t.Run("SaveAndGetAssessment", func(t *testing.T) {
		a := &domain.Assessment{
			ID:         "asmt-001",
			DocumentID: "doc-001",
			Status:     domain.StatusReview,
			Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
			Result: domain.FairnessResult{
				ContractFairnessScore: 54,
				RedFlagClauses: []domain.RedFlag{
					{Clause: "High Implied Interest Rate", Reason: "APR too high"},
				},
				FairnessBreakdown: domain.FairnessBreakdown{
					FinancialEfficiency:     0,
					AssetValueAlignment:     100,
					ContractFlexibility:     70,
					OperationalTransparency: 100,
				},
			},
			Metadata: domain.AssessmentMetadata{TraceID: "trace-001", Fingerprint: "abc"},
		}

		if err := repo.SaveAssessment(ctx, tenantID, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		got, err := repo.GetAssessment(ctx, tenantID, "asmt-001")
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if got.Status != domain.StatusReview || got.DocumentID != "doc-001" {
			t.Errorf("got %+v", got)
		}
		if got.Result.ContractFairnessScore != 54 || got.Result.FairnessBreakdown != a.Result.FairnessBreakdown {
			t.Errorf("result = %+v", got.Result)
		}
		if len(got.Result.RedFlagClauses) != 1 {
			t.Errorf("flags = %v", got.Result.RedFlagClauses)
		}
		if got.Metadata.TraceID != "trace-001" {
			t.Errorf("metadata = %+v", got.Metadata)
		}
		if !got.Timestamp.Equal(a.Timestamp) {
			t.Errorf("timestamp = %v, want %v", got.Timestamp, a.Timestamp)
		}
	})

	t.Run("ListAssessmentsNewestFirst", func(t *testing.T) {
		base := time.Now().UTC()
		for i, id := range []string{"list-1", "list-2", "list-3"} {
			_ = repo.SaveAssessment(ctx, "tenant-list", &domain.Assessment{
				ID:        id,
				Status:    domain.StatusFair,
				Timestamp: base.Add(time.Duration(i) * time.Second),
				Result:    domain.FairnessResult{ContractFairnessScore: 74, RedFlagClauses: []domain.RedFlag{}},
			})
		}

		list, err := repo.ListAssessments(ctx, "tenant-list", 2)
		if err != nil {
			t.Fatalf("ListAssessments failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 assessments, got %d", len(list))
		}
		if list[0].ID != "list-3" || list[1].ID != "list-2" {
			t.Errorf("order = %s, %s", list[0].ID, list[1].ID)
		}

		empty, err := repo.ListAssessments(ctx, "tenant-none", 0)
		if err != nil {
			t.Fatalf("ListAssessments failed: %v", err)
		}
		if empty == nil || len(empty) != 0 {
			t.Errorf("expected empty, non-nil list, got %v", empty)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if _, err := repo.GetDocument(ctx, "tenant-002", "doc-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
		if _, err := repo.GetAssessment(ctx, "tenant-002", "asmt-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := repo.SaveDocument(ctx, "", &domain.LeaseDocument{ID: "x"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		_, err = repo.ListAssessments(ctx, "", 10)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetDocument(ctx, tenantID, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetAssessment(ctx, tenantID, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestClauseRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	rule := &domain.ClauseRule{
		ID:         "balloon",
		Name:       "Balloon Payment",
		Version:    "1.2.0",
		Expression: `text.contains("balloon")`,
		Clause:     "Balloon Payment",
		Reason:     "lump sum",
		Enabled:    true,
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		if err := repo.SaveClauseRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveClauseRule failed: %v", err)
		}
		got, err := repo.GetClauseRule(ctx, tenantID, "balloon")
		if err != nil {
			t.Fatalf("GetClauseRule failed: %v", err)
		}
		if got.Clause != "Balloon Payment" || got.Reason != "lump sum" || !got.Enabled || got.TenantID != tenantID {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("LatestVersionWins", func(t *testing.T) {
		v2 := *rule
		v2.Version = "1.10.0"
		v2.Reason = "newer"
		if err := repo.SaveClauseRule(ctx, tenantID, &v2); err != nil {
			t.Fatal(err)
		}

		got, _ := repo.GetClauseRule(ctx, tenantID, "balloon")
		if got.Version != "1.10.0" {
			t.Errorf("version = %s, want 1.10.0", got.Version)
		}

		list, err := repo.ListClauseRules(ctx, tenantID)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].Reason != "newer" {
			t.Errorf("list = %+v", list)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		err := repo.SaveClauseRule(ctx, tenantID, &domain.ClauseRule{
			ID: "long-term", Expression: "term > 60.0", Clause: "Long Lease Term", Enabled: true,
		})
		if err != nil {
			t.Fatal(err)
		}
		got, _ := repo.GetClauseRule(ctx, tenantID, "long-term")
		if got.Version != "1.0.0" || got.Name != "Long Lease Term" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("RejectsIncompleteRule", func(t *testing.T) {
		err := repo.SaveClauseRule(ctx, tenantID, &domain.ClauseRule{ID: "x", Expression: "true"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("SoftDelete", func(t *testing.T) {
		if err := repo.DeleteClauseRule(ctx, tenantID, "balloon"); err != nil {
			t.Fatalf("DeleteClauseRule failed: %v", err)
		}
		if _, err := repo.GetClauseRule(ctx, tenantID, "balloon"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteClauseRule(ctx, tenantID, "balloon"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}

		list, _ := repo.ListClauseRules(ctx, tenantID)
		if len(list) != 1 || list[0].ID != "long-term" {
			t.Errorf("list = %+v", list)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		list, err := repo.ListClauseRules(ctx, "tenant-002")
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 0 {
			t.Errorf("tenant-002 sees %d rules", len(list))
		}
	})
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.SaveDocument(ctx, "t", &domain.LeaseDocument{ID: "d", Record: []byte(`{}`)}); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if _, err := repo.GetDocument(ctx, "t", "d"); err != nil {
		t.Errorf("GetDocument failed: %v", err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		if result := repo.rebind(tt.input); result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if q := sqlite.rebind("a = ?"); q != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", q)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{})
	if dsn != "host=localhost port=5432 dbname=leasecheck sslmode=disable" {
		t.Errorf("default dsn = %q", dsn)
	}

	dsn = postgresDSN(domain.RepositoryConfig{
		PostgresHost:     "db.internal",
		PostgresUser:     "lease",
		PostgresPassword: `it's a secret`,
		PostgresSSLMode:  "require",
	})
	if !strings.Contains(dsn, `password='it\'s a secret'`) {
		t.Errorf("password not quoted: %q", dsn)
	}
	if !strings.Contains(dsn, "user=lease") || !strings.Contains(dsn, "sslmode=require") {
		t.Errorf("dsn = %q", dsn)
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.10.0", "1.9.0", 1},
		{"1.2", "1.2.1", -1},
		{"2.0.0-beta", "2.0.0-alpha", 1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
