package repository

// Schema definitions for the Kestrel catalog and quote store.
// Compatible with both SQLite and PostgreSQL.

const schemaPricingRules = `
CREATE TABLE IF NOT EXISTS pricing_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    minimum_value REAL,
    maximum_value REAL,
    service_id TEXT NOT NULL DEFAULT '',
    pricing_type TEXT NOT NULL DEFAULT '',
    billing_frequency TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_pricing_rules_tenant ON pricing_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_pricing_rules_position ON pricing_rules(tenant_id, position);
CREATE INDEX IF NOT EXISTS idx_pricing_rules_enabled ON pricing_rules(tenant_id, enabled);
`

const schemaServiceEndpoints = `
CREATE TABLE IF NOT EXISTS service_endpoints (
    service_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    total_variable TEXT NOT NULL,
    billing_frequency TEXT NOT NULL DEFAULT '',
    aggregation TEXT,
    position INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (service_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_service_endpoints_tenant ON service_endpoints(tenant_id);
CREATE INDEX IF NOT EXISTS idx_service_endpoints_position ON service_endpoints(tenant_id, position);
CREATE INDEX IF NOT EXISTS idx_service_endpoints_variable ON service_endpoints(tenant_id, total_variable);
`

const schemaQuotes = `
CREATE TABLE IF NOT EXISTS quotes (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    lines TEXT NOT NULL,
    totals TEXT NOT NULL,
    monthly_total REAL NOT NULL,
    one_time_total REAL NOT NULL,
    annual_total REAL NOT NULL,
    grand_total REAL NOT NULL,
    prices TEXT,
    trace TEXT,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quotes_tenant ON quotes(tenant_id);
CREATE INDEX IF NOT EXISTS idx_quotes_timestamp ON quotes(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPricingRules,
		schemaServiceEndpoints,
		schemaQuotes,
	}
}
