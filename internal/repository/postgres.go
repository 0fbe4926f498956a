package repository

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/openpricing/kestrel/internal/domain"
)

// openPostgres opens the Pro tier database. Pool sizing is applied by New
// after open, from the same RepositoryConfig.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return db, nil
}

// postgresDSN assembles the lib/pq keyword DSN, defaulting host, port, and
// database name for a local Pro deployment. Empty credentials are omitted so
// peer or trust auth setups work without placeholder values.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "kestrel"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	params := []string{
		"host=" + host,
		fmt.Sprintf("port=%d", port),
		"dbname=" + dbname,
		"sslmode=" + sslmode,
	}
	if cfg.PostgresUser != "" {
		params = append(params, "user="+cfg.PostgresUser)
	}
	if cfg.PostgresPassword != "" {
		params = append(params, "password="+cfg.PostgresPassword)
	}

	return strings.Join(params, " ")
}
