package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/creditdesk/pkg/platform"
)

// ErrNoReport is returned when no cycle has completed yet.
var ErrNoReport = errors.New("no health report available")

// ReportStore keeps completed reports in monitor_reports. The full report is
// stored as a JSON blob next to the columns used for filtering.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore runs the monitor migrations and returns the store.
func NewReportStore(ctx context.Context, store platform.Store) (*ReportStore, error) {
	if err := store.Migrate(ctx, "monitor", migrations); err != nil {
		return nil, fmt.Errorf("monitor migrations: %w", err)
	}
	return &ReportStore{db: store.DB()}, nil
}

// Save appends r to the history.
func (s *ReportStore) Save(ctx context.Context, r *HealthReport) error {
	blob, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monitor_reports (started_at, overall_status, health_percentage, report)
		VALUES (?, ?, ?, ?)`,
		r.Timestamp.UnixMilli(), string(r.OverallStatus), r.HealthPercentage, string(blob),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Latest returns the most recent report or ErrNoReport.
func (s *ReportStore) Latest(ctx context.Context) (*HealthReport, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM monitor_reports ORDER BY started_at DESC, id DESC LIMIT 1`,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	return decodeReport(blob)
}

// History returns reports started at or after since, newest first, at most
// limit (0 means no limit).
func (s *ReportStore) History(ctx context.Context, since time.Time, limit int) ([]HealthReport, error) {
	query := `SELECT report FROM monitor_reports WHERE started_at >= ? ORDER BY started_at DESC, id DESC`
	args := []any{since.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	reports := []HealthReport{}
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r, err := decodeReport(blob)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// DeleteBefore removes reports started before cutoff.
func (s *ReportStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitor_reports WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete reports: %w", err)
	}
	return res.RowsAffected()
}

func decodeReport(blob string) (*HealthReport, error) {
	var r HealthReport
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

var migrations = []platform.Migration{
	{
		Version:     1,
		Description: "create monitor_reports",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS monitor_reports (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					started_at INTEGER NOT NULL,
					overall_status TEXT NOT NULL,
					health_percentage REAL NOT NULL,
					report TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_monitor_reports_started ON monitor_reports(started_at)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
