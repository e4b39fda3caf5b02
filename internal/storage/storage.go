// Package storage provides SQLite-backed persistence for sales snapshots and alert history.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rewired-gh/bizalert/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an alert id does not exist.
var ErrNotFound = errors.New("not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

var openDB = sql.Open

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/bizalert/data.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "bizalert", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := setup(db, maxAlerts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// setup prepares an opened database. The caller closes db on error.
func setup(db *sql.DB, maxAlerts int) (*Storage, error) {
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sales_records (
			period      TEXT NOT NULL,
			branch      TEXT NOT NULL,
			revenue     REAL NOT NULL,
			profit      REAL NOT NULL,
			roi         REAL NOT NULL,
			growth      REAL NOT NULL,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (period, branch)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id            TEXT PRIMARY KEY,
			rule_id       TEXT NOT NULL,
			type          TEXT NOT NULL,
			message       TEXT NOT NULL,
			severity      TEXT NOT NULL,
			severity_rank INTEGER NOT NULL,
			data          TEXT NOT NULL DEFAULT '{}',
			created_at    INTEGER NOT NULL,
			acknowledged  INTEGER NOT NULL DEFAULT 0,
			dismissed     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_recorded_at ON sales_records(recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRecords stores a snapshot of records, replacing any earlier snapshot
// of the same period and branch.
func (s *Storage) SaveRecords(records []models.SalesRecord, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range records {
		r := &records[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO sales_records
				(period, branch, revenue, profit, roi, growth, recorded_at)
			VALUES (?,?,?,?,?,?,?)`,
			r.Period, r.Branch, r.Revenue, r.Profit, r.ROI, r.Growth, at.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	return tx.Commit()
}

// PreviousRevenue returns revenue per branch from the most recently recorded
// period other than period. The map is empty when no such period exists.
func (s *Storage) PreviousRevenue(period string) (map[string]float64, error) {
	rows, err := s.db.Query(`
		SELECT branch, revenue FROM sales_records
		WHERE period = (
			SELECT period FROM sales_records
			WHERE period <> ?
			ORDER BY recorded_at DESC LIMIT 1
		)`, period)
	if err != nil {
		return nil, fmt.Errorf("failed to query previous revenue: %w", err)
	}
	defer rows.Close()

	revenue := make(map[string]float64)
	for rows.Next() {
		var branch string
		var v float64
		if err := rows.Scan(&branch, &v); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		revenue[branch] = v
	}
	return revenue, rows.Err()
}

// AddAlerts inserts alerts and trims history to the configured cap.
func (s *Storage) AddAlerts(alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range alerts {
		a := &alerts[i]
		data, err := json.Marshal(a.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal alert data: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO alerts
				(id, rule_id, type, message, severity, severity_rank, data,
				 created_at, acknowledged, dismissed)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			a.ID, a.RuleID, a.Type, a.Message, string(a.Severity), a.Severity.Rank(),
			string(data), a.Timestamp.UnixNano(), boolToInt(a.Acknowledged), boolToInt(a.Dismissed),
		); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if s.maxAlerts > 0 {
		if _, err := tx.Exec(rotateAlertsSQL, s.maxAlerts); err != nil {
			return fmt.Errorf("failed to enforce alert cap: %w", err)
		}
	}

	return tx.Commit()
}

// AlertFilter narrows ListAlerts. Zero values match everything.
type AlertFilter struct {
	MinSeverity      models.Severity
	IncludeDismissed bool
	Since            time.Time
	Limit            int
}

// ListAlerts returns alerts newest first, most severe first within a timestamp.
func (s *Storage) ListAlerts(f AlertFilter) ([]models.Alert, error) {
	var where []string
	var args []any
	if f.MinSeverity != "" {
		where = append(where, "severity_rank >= ?")
		args = append(args, f.MinSeverity.Rank())
	}
	if !f.IncludeDismissed {
		where = append(where, "dismissed = 0")
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixNano())
	}

	q := `SELECT ` + alertCols + ` FROM alerts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, severity_rank DESC, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *Storage) GetAlert(id string) (*models.Alert, error) {
	row := s.db.QueryRow(`SELECT `+alertCols+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// Acknowledge marks an alert as seen.
func (s *Storage) Acknowledge(id string) error {
	return s.setFlag(id, "acknowledged")
}

// Dismiss hides an alert from default listings.
func (s *Storage) Dismiss(id string) error {
	return s.setFlag(id, "dismissed")
}

func (s *Storage) setFlag(id, column string) error {
	res, err := s.db.Exec(`UPDATE alerts SET `+column+` = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

// PruneAlerts deletes alerts created before the cutoff and returns how many were removed.
func (s *Storage) PruneAlerts(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM alerts WHERE created_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RotateAlerts keeps at most maxAlerts newest alerts.
func (s *Storage) RotateAlerts() error {
	if s.maxAlerts <= 0 {
		return nil
	}
	if _, err := s.db.Exec(rotateAlertsSQL, s.maxAlerts); err != nil {
		return fmt.Errorf("failed to rotate alerts: %w", err)
	}
	return nil
}

const rotateAlertsSQL = `
	DELETE FROM alerts WHERE id NOT IN (
		SELECT id FROM alerts ORDER BY created_at DESC LIMIT ?
	)`

const alertCols = `id, rule_id, type, message, severity, data, created_at, acknowledged, dismissed`

func scanAlert(scan func(...any) error) (*models.Alert, error) {
	var a models.Alert
	var severity, data string
	var createdAtNano int64
	var acknowledged, dismissed int
	err := scan(
		&a.ID, &a.RuleID, &a.Type, &a.Message, &severity, &data,
		&createdAtNano, &acknowledged, &dismissed,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &a.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert data: %w", err)
	}
	a.Severity = models.Severity(severity)
	a.Timestamp = time.Unix(0, createdAtNano)
	a.Acknowledged = acknowledged != 0
	a.Dismissed = dismissed != 0
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
