package repository

// Schema definitions for the leasecheck database.
// Compatible with both SQLite and PostgreSQL.

// schemaLeaseDocuments holds extracted lease records as received.
const schemaLeaseDocuments = `
CREATE TABLE IF NOT EXISTS lease_documents (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    source TEXT,
    record TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_lease_documents_created ON lease_documents(tenant_id, created_at);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    status TEXT NOT NULL,
    score INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    result TEXT NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_document ON assessments(tenant_id, document_id);
CREATE INDEX IF NOT EXISTS idx_assessments_status ON assessments(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(tenant_id, timestamp);
`

// schemaClauseRules defines tenant clause rules.
// Rows are versioned; deleting a rule disables every version.
const schemaClauseRules = `
CREATE TABLE IF NOT EXISTS clause_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    clause TEXT NOT NULL,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_clause_rules_tenant ON clause_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_clause_rules_enabled ON clause_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaLeaseDocuments,
		schemaAssessments,
		schemaClauseRules,
	}
}
