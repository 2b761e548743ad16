// Package persist flattens module results into the storage record shape and
// writes them through an sqlx-backed store. This is the consumer-side
// contract; schema migrations live with the consumer.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/leadscope/enrich/internal/enrich"
)

// SupportingSource is one supporting citation flattened for storage.
type SupportingSource struct {
	URL  string    `json:"url"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// Record is the flattened form of one module result.
type Record struct {
	ModuleID          string    `db:"module_id" json:"module_id"`
	Domain            string    `db:"domain" json:"domain"`
	Status            string    `db:"status" json:"status"`
	Data              []byte    `db:"data" json:"data"`
	PrimarySourceURL  string    `db:"primary_source_url" json:"primary_source_url"`
	PrimarySourceType string    `db:"primary_source_type" json:"primary_source_type"`
	PrimarySourceAt   time.Time `db:"primary_source_at" json:"primary_source_at"`
	SupportingSources []byte    `db:"supporting_sources" json:"supporting_sources"`
	ExecutedAt        time.Time `db:"executed_at" json:"executed_at"`
	DurationMS        int64     `db:"duration_ms" json:"duration_ms"`
	Cached            bool      `db:"cached" json:"cached"`
	ErrorMessage      string    `db:"error_message" json:"error_message"`
}

// Flatten converts a module result into its record. Results without a
// primary citation are rejected: nothing uncited reaches storage.
func Flatten(result *enrich.Result) (*Record, error) {
	if result == nil {
		return nil, fmt.Errorf("persist: nil result")
	}
	if result.PrimaryCitation == nil {
		return nil, fmt.Errorf("persist: %s has no primary citation", result.ModuleID)
	}

	data, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("persist: encode data: %w", err)
	}

	supporting := make([]SupportingSource, 0, len(result.SupportingCitations))
	for _, c := range result.SupportingCitations {
		supporting = append(supporting, SupportingSource{
			URL:  c.SourceURL,
			Type: string(c.SourceType),
			At:   c.RetrievedAt,
		})
	}
	supportingJSON, err := json.Marshal(supporting)
	if err != nil {
		return nil, fmt.Errorf("persist: encode supporting sources: %w", err)
	}

	primary := result.PrimaryCitation
	return &Record{
		ModuleID:          result.ModuleID,
		Domain:            result.Domain,
		Status:            string(result.Status),
		Data:              data,
		PrimarySourceURL:  primary.SourceURL,
		PrimarySourceType: string(primary.SourceType),
		PrimarySourceAt:   primary.RetrievedAt,
		SupportingSources: supportingJSON,
		ExecutedAt:        result.ExecutedAt,
		DurationMS:        result.DurationMS,
		Cached:            result.Cached,
		ErrorMessage:      result.ErrorMessage,
	}, nil
}

// schema is applied idempotently on store construction.
const schema = `
CREATE TABLE IF NOT EXISTS module_results (
	id                  BIGSERIAL PRIMARY KEY,
	module_id           TEXT        NOT NULL,
	domain              TEXT        NOT NULL,
	status              TEXT        NOT NULL,
	data                JSONB       NOT NULL,
	primary_source_url  TEXT        NOT NULL,
	primary_source_type TEXT        NOT NULL,
	primary_source_at   TIMESTAMPTZ NOT NULL,
	supporting_sources  JSONB       NOT NULL,
	executed_at         TIMESTAMPTZ NOT NULL,
	duration_ms         BIGINT      NOT NULL,
	cached              BOOLEAN     NOT NULL,
	error_message       TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS module_results_domain_idx ON module_results (domain, module_id, executed_at DESC);
`

// Store writes and reads records against postgres.
type Store struct {
	db *sqlx.DB
}

// Open connects to postgres and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persist: connect: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, for tests.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

const insertStmt = `
INSERT INTO module_results (
	module_id, domain, status, data,
	primary_source_url, primary_source_type, primary_source_at,
	supporting_sources, executed_at, duration_ms, cached, error_message
) VALUES (
	:module_id, :domain, :status, :data,
	:primary_source_url, :primary_source_type, :primary_source_at,
	:supporting_sources, :executed_at, :duration_ms, :cached, :error_message
)`

// Save flattens and inserts one result.
func (s *Store) Save(ctx context.Context, result *enrich.Result) error {
	record, err := Flatten(result)
	if err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, insertStmt, record); err != nil {
		return fmt.Errorf("persist: insert %s/%s: %w", record.Domain, record.ModuleID, err)
	}
	return nil
}

// SaveAll inserts every result of a finished job inside one transaction.
func (s *Store) SaveAll(ctx context.Context, results map[string]*enrich.Result) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin: %w", err)
	}
	defer tx.Rollback()

	for _, result := range results {
		record, err := Flatten(result)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, insertStmt, record); err != nil {
			return fmt.Errorf("persist: insert %s/%s: %w", record.Domain, record.ModuleID, err)
		}
	}
	return tx.Commit()
}

// ListByDomain returns the latest record per module for a domain.
func (s *Store) ListByDomain(ctx context.Context, domain string) ([]Record, error) {
	const query = `
SELECT DISTINCT ON (module_id)
	module_id, domain, status, data,
	primary_source_url, primary_source_type, primary_source_at,
	supporting_sources, executed_at, duration_ms, cached, error_message
FROM module_results
WHERE domain = $1
ORDER BY module_id, executed_at DESC`
	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, domain); err != nil {
		return nil, fmt.Errorf("persist: list %s: %w", domain, err)
	}
	return records, nil
}
