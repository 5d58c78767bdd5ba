// Package audit provides PostgreSQL-backed storage for abuse events. Each
// accepted report and each executed ban is archived for moderator review.
// The archive is write-only from the relay's point of view; the live
// report/block state stays in memory inside the hub.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Store manages abuse event archival in PostgreSQL.
type Store struct {
	db *sql.DB
}

// ReportRow is a single archived abuse report.
type ReportRow struct {
	TargetID   string
	ReporterID string
	Count      int // distinct reporters at the time of the report
	ReportedAt time.Time
}

// BanRow is a single archived ban with the reporters that triggered it.
type BanRow struct {
	TargetID  string
	Reporters []string
	BannedAt  time.Time
}

// Open connects to PostgreSQL with the given DSN, verifies the connection,
// and runs pending schema migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore creates a Store on an existing database handle. The caller is
// responsible for having run the migrations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertReport archives an abuse report.
func (s *Store) InsertReport(ctx context.Context, row *ReportRow) error {
	const query = `
		INSERT INTO abuse_reports (target_id, reporter_id, reporter_count, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query,
		row.TargetID,
		row.ReporterID,
		row.Count,
		row.ReportedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert report: %w", err)
	}
	return nil
}

// InsertBan archives a ban. Reporters are marshalled to JSONB.
func (s *Store) InsertBan(ctx context.Context, row *BanRow) error {
	reportersJSON, err := json.Marshal(row.Reporters)
	if err != nil {
		return fmt.Errorf("audit: marshal reporters: %w", err)
	}

	const query = `
		INSERT INTO bans (target_id, reporters, created_at)
		VALUES ($1, $2, $3)`

	_, err = s.db.ExecContext(ctx, query, row.TargetID, reportersJSON, row.BannedAt)
	if err != nil {
		return fmt.Errorf("audit: insert ban: %w", err)
	}
	return nil
}

// CountRecentReports returns the number of archived reports against a target
// within the given time window. Useful for moderator tooling that looks at
// repeat offenders across bans.
func (s *Store) CountRecentReports(ctx context.Context, targetID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM abuse_reports
		WHERE target_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, targetID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count recent reports: %w", err)
	}
	return count, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
