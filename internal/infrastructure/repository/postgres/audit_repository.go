package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

const schemaLockKey int64 = 2026101801

// AuditRepository stores one operational row per analysis. Clinical values and raw text
// are never written here.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrently starting replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS report_analysis_audit (
	document_id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL DEFAULT '',
	media_type TEXT NOT NULL,
	report_type TEXT NOT NULL,
	file_type TEXT NOT NULL,
	provenance TEXT NOT NULL DEFAULT '',
	char_count INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	parameter_count INTEGER NOT NULL DEFAULT 0,
	abnormal_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_report_analysis_audit_created_at ON report_analysis_audit(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_report_analysis_audit_outcome ON report_analysis_audit(outcome);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) Record(ctx context.Context, audit domain.AnalysisAudit) error {
	if audit.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record analysis audit", errors.New("document id is required"))
	}
	createdAt := audit.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO report_analysis_audit (
	document_id, request_id, filename, media_type, report_type, file_type, provenance,
	char_count, outcome, parameter_count, abnormal_count, error_message, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (document_id) DO NOTHING
`,
		audit.DocumentID, audit.RequestID, audit.Filename, audit.MediaType, string(audit.ReportType),
		audit.FileType, string(audit.Provenance), audit.CharCount, string(audit.Outcome),
		audit.ParameterCount, audit.AbnormalCount, truncate(audit.ErrorMessage, 1000),
		audit.Duration.Milliseconds(), createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis audit: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
