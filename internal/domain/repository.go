// Package domain defines the core interfaces and types for leasecheck.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Extracted lease documents
	SaveDocument(ctx context.Context, tenantID string, doc *LeaseDocument) error
	GetDocument(ctx context.Context, tenantID string, docID string) (*LeaseDocument, error)

	// Assessments
	SaveAssessment(ctx context.Context, tenantID string, a *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, id string) (*Assessment, error)
	ListAssessments(ctx context.Context, tenantID string, limit int) ([]*Assessment, error)

	// Clause rules
	SaveClauseRule(ctx context.Context, tenantID string, rule *ClauseRule) error
	GetClauseRule(ctx context.Context, tenantID string, ruleID string) (*ClauseRule, error)
	ListClauseRules(ctx context.Context, tenantID string) ([]*ClauseRule, error)
	DeleteClauseRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
