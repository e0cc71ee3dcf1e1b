// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration and runs migrations.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pool settings only apply to PostgreSQL; SQLite keeps one connection.
	if cfg.Driver == "postgres" {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveDocument stores an extracted lease record. Saving an existing
// document ID replaces its record.
func (r *SQLRepository) SaveDocument(ctx context.Context, tenantID string, doc *domain.LeaseDocument) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}

	record := doc.Record
	if len(record) == 0 {
		record = []byte("{}")
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO lease_documents (id, tenant_id, source, record, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			source = excluded.source,
			record = excluded.record
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		doc.ID, tenantID, doc.Source, string(record), createdAt,
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument retrieves a lease document with tenant isolation.
func (r *SQLRepository) GetDocument(ctx context.Context, tenantID string, docID string) (*domain.LeaseDocument, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, source, record, created_at
		FROM lease_documents
		WHERE tenant_id = ? AND id = ?
	`

	var doc domain.LeaseDocument
	var source sql.NullString
	var record string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, docID).Scan(
		&doc.ID, &doc.TenantID, &source, &record, &doc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc.Source = source.String
	doc.Record = []byte(record)
	return &doc, nil
}

// SaveAssessment stores an assessment with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: assessment id is required", ErrInvalidInput)
	}

	result, err := json.Marshal(a.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, document_id, status, score, timestamp, result, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.DocumentID, a.Status, a.Result.ContractFairnessScore,
		a.Timestamp, string(result), string(metadata),
	)
	if err != nil {
		return fmt.Errorf("save assessment %s: %w", a.ID, err)
	}
	return nil
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, id string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, document_id, status, timestamp, result, metadata
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	a, err := scanAssessment(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAssessments returns the tenant's most recent assessments, newest first.
// A non-positive limit uses the default; limits are capped.
func (r *SQLRepository) ListAssessments(ctx context.Context, tenantID string, limit int) ([]*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, tenant_id, document_id, status, timestamp, result, metadata
		FROM assessments
		WHERE tenant_id = ?
		ORDER BY timestamp DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assessments := make([]*domain.Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}

	return assessments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*domain.Assessment, error) {
	var a domain.Assessment
	var result string
	var metadata sql.NullString

	if err := row.Scan(&a.ID, &a.TenantID, &a.DocumentID, &a.Status, &a.Timestamp, &result, &metadata); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(result), &a.Result); err != nil {
		return nil, fmt.Errorf("failed to parse assessment result %s: %w", a.ID, err)
	}
	if a.Result.RedFlagClauses == nil {
		a.Result.RedFlagClauses = []domain.RedFlag{}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse assessment metadata %s: %w", a.ID, err)
		}
	}
	a.Timestamp = a.Timestamp.UTC()

	return &a, nil
}

// SaveClauseRule stores a clause rule with tenant isolation.
// Saving the same ID and version updates that version in place.
func (r *SQLRepository) SaveClauseRule(ctx context.Context, tenantID string, rule *domain.ClauseRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" || rule.Expression == "" || rule.Clause == "" {
		return fmt.Errorf("%w: rule id, expression and clause are required", ErrInvalidInput)
	}

	version := rule.Version
	if version == "" {
		version = "1.0.0"
	}
	name := rule.Name
	if name == "" {
		name = rule.Clause
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO clause_rules (
			id, tenant_id, name, description, version, expression, clause, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			clause = excluded.clause,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, name, rule.Description, version,
		rule.Expression, rule.Clause, rule.Reason, enabled,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("save clause rule %s: %w", rule.ID, err)
	}
	return nil
}

const clauseRuleColumns = `id, tenant_id, name, description, version, expression, clause, reason, enabled`

// GetClauseRule retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetClauseRule(ctx context.Context, tenantID string, ruleID string) (*domain.ClauseRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + clauseRuleColumns + `
		FROM clause_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var latest *domain.ClauseRule
	for rows.Next() {
		rule, err := scanClauseRule(rows)
		if err != nil {
			return nil, err
		}
		if latest == nil || compareVersions(rule.Version, latest.Version) > 0 {
			latest = rule
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// ListClauseRules returns the latest enabled version of each of the tenant's rules.
func (r *SQLRepository) ListClauseRules(ctx context.Context, tenantID string) ([]*domain.ClauseRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + clauseRuleColumns + `
		FROM clause_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]*domain.ClauseRule, 0)
	index := make(map[string]int)
	for rows.Next() {
		rule, err := scanClauseRule(rows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[rule.ID]; ok {
			if compareVersions(rule.Version, rules[i].Version) > 0 {
				rules[i] = rule
			}
			continue
		}
		index[rule.ID] = len(rules)
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// DeleteClauseRule soft-deletes every version of a rule.
func (r *SQLRepository) DeleteClauseRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE clause_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func scanClauseRule(row rowScanner) (*domain.ClauseRule, error) {
	var rule domain.ClauseRule
	var description, reason sql.NullString
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description,
		&rule.Version, &rule.Expression, &rule.Clause, &reason, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Reason = reason.String
	rule.Enabled = enabled == 1
	return &rule, nil
}

// compareVersions orders dotted numeric versions ("1.10.0" > "1.9.2").
// Non-numeric parts compare as strings.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		xn, xerr := strconv.Atoi(x)
		yn, yerr := strconv.Atoi(y)
		if xerr == nil && yerr == nil {
			if xn != yn {
				if xn < yn {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(x, y); c != 0 {
			return c
		}
	}
	return 0
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
