// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openpricing/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
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

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
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

// SavePricingRule stores a pricing rule with tenant isolation.
func (r *SQLRepository) SavePricingRule(ctx context.Context, tenantID string, rule *domain.PricingRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO pricing_rules (
			id, tenant_id, name, description, expression,
			minimum_value, maximum_value,
			service_id, pricing_type, billing_frequency,
			position, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			minimum_value = excluded.minimum_value,
			maximum_value = excluded.maximum_value,
			service_id = excluded.service_id,
			pricing_type = excluded.pricing_type,
			billing_frequency = excluded.billing_frequency,
			position = excluded.position,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Expression,
		rule.MinimumValue, rule.MaximumValue,
		rule.ServiceID, rule.PricingType, rule.BillingFrequency,
		rule.Position, enabled, now, now,
	)
	return err
}

// GetPricingRule retrieves a pricing rule with tenant isolation.
func (r *SQLRepository) GetPricingRule(ctx context.Context, tenantID string, ruleID string) (*domain.PricingRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression,
		       minimum_value, maximum_value,
		       service_id, pricing_type, billing_frequency,
		       position, enabled
		FROM pricing_rules
		WHERE tenant_id = ? AND id = ?
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListPricingRules retrieves all active rules for a tenant in catalog order.
// Evaluation order equals this order.
func (r *SQLRepository) ListPricingRules(ctx context.Context, tenantID string) ([]*domain.PricingRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression,
		       minimum_value, maximum_value,
		       service_id, pricing_type, billing_frequency,
		       position, enabled
		FROM pricing_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.PricingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.PricingRule, error) {
	var rule domain.PricingRule
	var description sql.NullString
	var minimum, maximum sql.NullFloat64
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description, &rule.Expression,
		&minimum, &maximum,
		&rule.ServiceID, &rule.PricingType, &rule.BillingFrequency,
		&rule.Position, &enabled,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	if minimum.Valid {
		rule.MinimumValue = &minimum.Float64
	}
	if maximum.Valid {
		rule.MaximumValue = &maximum.Float64
	}
	rule.Enabled = enabled == 1

	return &rule, nil
}

// SaveServiceEndpoint stores a service endpoint with tenant isolation.
func (r *SQLRepository) SaveServiceEndpoint(ctx context.Context, tenantID string, endpoint *domain.ServiceEndpoint) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var aggregation any
	if endpoint.Aggregation != nil {
		data, err := json.Marshal(endpoint.Aggregation)
		if err != nil {
			return fmt.Errorf("failed to marshal aggregation rules: %w", err)
		}
		aggregation = string(data)
	}

	enabled := 0
	if endpoint.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO service_endpoints (
			service_id, tenant_id, name, description, total_variable,
			billing_frequency, aggregation, position, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			total_variable = excluded.total_variable,
			billing_frequency = excluded.billing_frequency,
			aggregation = excluded.aggregation,
			position = excluded.position,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		endpoint.ServiceID, tenantID, endpoint.Name, endpoint.Description,
		endpoint.TotalVariable, endpoint.BillingFrequency, aggregation,
		endpoint.Position, enabled, now, now,
	)
	return err
}

// GetServiceEndpoint retrieves a service endpoint with tenant isolation.
func (r *SQLRepository) GetServiceEndpoint(ctx context.Context, tenantID string, serviceID string) (*domain.ServiceEndpoint, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT service_id, tenant_id, name, description, total_variable,
		       billing_frequency, aggregation, position, enabled, created_at, updated_at
		FROM service_endpoints
		WHERE tenant_id = ? AND service_id = ?
	`

	endpoint, err := scanEndpoint(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, serviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return endpoint, err
}

// ListServiceEndpoints retrieves all active endpoints for a tenant in catalog order.
func (r *SQLRepository) ListServiceEndpoints(ctx context.Context, tenantID string) ([]*domain.ServiceEndpoint, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT service_id, tenant_id, name, description, total_variable,
		       billing_frequency, aggregation, position, enabled, created_at, updated_at
		FROM service_endpoints
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY position, service_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*domain.ServiceEndpoint
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, rows.Err()
}

func scanEndpoint(row rowScanner) (*domain.ServiceEndpoint, error) {
	var ep domain.ServiceEndpoint
	var description sql.NullString
	var aggregation sql.NullString
	var enabled int

	err := row.Scan(
		&ep.ServiceID, &ep.TenantID, &ep.Name, &description, &ep.TotalVariable,
		&ep.BillingFrequency, &aggregation, &ep.Position, &enabled,
		&ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ep.Description = description.String
	ep.Enabled = enabled == 1
	if aggregation.Valid && aggregation.String != "" {
		var filter domain.FilterSpec
		if err := json.Unmarshal([]byte(aggregation.String), &filter); err != nil {
			return nil, fmt.Errorf("failed to parse aggregation rules for %s: %w", ep.ServiceID, err)
		}
		ep.Aggregation = &filter
	}

	return &ep, nil
}

// DeleteServiceEndpoint soft-deletes an endpoint by setting enabled = 0.
func (r *SQLRepository) DeleteServiceEndpoint(ctx context.Context, tenantID string, serviceID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE service_endpoints
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND service_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, serviceID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveQuote stores a computed quote with tenant isolation.
func (r *SQLRepository) SaveQuote(ctx context.Context, tenantID string, quote *domain.Quote) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	lines, _ := json.Marshal(quote.Lines)
	totals, _ := json.Marshal(quote.Totals)
	prices, _ := json.Marshal(quote.Prices)
	trace, _ := json.Marshal(quote.Trace)
	metadata, _ := json.Marshal(quote.Metadata)

	query := `
		INSERT INTO quotes (
			id, tenant_id, lines, totals,
			monthly_total, one_time_total, annual_total, grand_total,
			prices, trace, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		quote.ID, tenantID, string(lines), string(totals),
		quote.MonthlyTotal, quote.OneTimeTotal, quote.AnnualTotal, quote.GrandTotal,
		string(prices), string(trace), quote.Timestamp, string(metadata),
	)
	return err
}

// GetQuote retrieves a quote by ID with tenant isolation.
func (r *SQLRepository) GetQuote(ctx context.Context, tenantID string, quoteID string) (*domain.Quote, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, lines, totals,
		       monthly_total, one_time_total, annual_total, grand_total,
		       prices, trace, timestamp, metadata
		FROM quotes
		WHERE tenant_id = ? AND id = ?
	`

	var q domain.Quote
	var lines, totals, metadata string
	var prices, trace sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, quoteID).Scan(
		&q.ID, &q.TenantID, &lines, &totals,
		&q.MonthlyTotal, &q.OneTimeTotal, &q.AnnualTotal, &q.GrandTotal,
		&prices, &trace, &q.Timestamp, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(lines), &q.Lines)
	json.Unmarshal([]byte(totals), &q.Totals)
	json.Unmarshal([]byte(metadata), &q.Metadata)
	if prices.Valid {
		json.Unmarshal([]byte(prices.String), &q.Prices)
	}
	if trace.Valid {
		json.Unmarshal([]byte(trace.String), &q.Trace)
	}

	return &q, nil
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

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
