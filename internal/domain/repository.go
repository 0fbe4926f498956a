// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Pricing rule catalog operations. ListPricingRules returns rules in
	// catalog order (ascending position); evaluation order equals this order.
	SavePricingRule(ctx context.Context, tenantID string, rule *PricingRule) error
	GetPricingRule(ctx context.Context, tenantID string, ruleID string) (*PricingRule, error)
	ListPricingRules(ctx context.Context, tenantID string) ([]*PricingRule, error)

	// Service endpoint catalog operations.
	SaveServiceEndpoint(ctx context.Context, tenantID string, endpoint *ServiceEndpoint) error
	GetServiceEndpoint(ctx context.Context, tenantID string, serviceID string) (*ServiceEndpoint, error)
	ListServiceEndpoints(ctx context.Context, tenantID string) ([]*ServiceEndpoint, error)
	DeleteServiceEndpoint(ctx context.Context, tenantID string, serviceID string) error

	// Quote persistence.
	SaveQuote(ctx context.Context, tenantID string, quote *Quote) error
	GetQuote(ctx context.Context, tenantID string, quoteID string) (*Quote, error)

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
