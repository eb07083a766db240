// Package qcstore provides persistent storage for QC runs and their
// per-cell metrics using SQLite.
package qcstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cellkit/cellkit/internal/qc"
)

// Run is one recorded QC calculation over a dataset.
type Run struct {
	ID           string    `json:"run_id"`
	Dataset      string    `json:"dataset"`
	NFeatures    int       `json:"n_features"`
	NCells       int       `json:"n_cells"`
	DepthSource  string    `json:"depth_source"`
	NControls    int       `json:"n_controls"`
	NMADs        float64   `json:"n_mads"`
	CellsFlagged int       `json:"cells_flagged"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewRun builds a run record with a fresh ID from a calculation summary.
func NewRun(dataset string, nFeatures, nCells int, sum qc.Summary, nmads float64) *Run {
	return &Run{
		ID:           uuid.NewString(),
		Dataset:      dataset,
		NFeatures:    nFeatures,
		NCells:       nCells,
		DepthSource:  sum.DepthSource,
		NControls:    sum.ControlFeatures,
		NMADs:        nmads,
		CellsFlagged: sum.CellsFlagged,
		CreatedAt:    time.Now().UTC(),
	}
}

// Store provides persistent storage for QC runs using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens or creates the SQLite database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS qc_runs (
		run_id TEXT PRIMARY KEY,
		dataset TEXT NOT NULL,
		n_features INTEGER NOT NULL,
		n_cells INTEGER NOT NULL,
		depth_source TEXT NOT NULL,
		n_controls INTEGER DEFAULT 0,
		n_mads REAL NOT NULL,
		cells_flagged INTEGER DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_qc_runs_dataset ON qc_runs(dataset);
	CREATE INDEX IF NOT EXISTS idx_qc_runs_created ON qc_runs(created_at);

	CREATE TABLE IF NOT EXISTS qc_cells (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cell TEXT NOT NULL,
		total_counts REAL NOT NULL,
		log10_total_counts REAL NOT NULL,
		total_features INTEGER NOT NULL,
		pct_counts_from_controls REAL NOT NULL,
		filter_on_total_counts INTEGER NOT NULL,
		filter_on_total_features INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES qc_runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_qc_cells_run ON qc_cells(run_id);
	CREATE INDEX IF NOT EXISTS idx_qc_cells_run_counts ON qc_cells(run_id, total_counts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts a run record and its per-cell metrics in one transaction.
func (s *Store) SaveRun(run *Run, cells []qc.CellRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO qc_runs (run_id, dataset, n_features, n_cells, depth_source, n_controls, n_mads, cells_flagged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Dataset,
		run.NFeatures,
		run.NCells,
		run.DepthSource,
		run.NControls,
		run.NMADs,
		run.CellsFlagged,
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO qc_cells (run_id, cell, total_counts, log10_total_counts, total_features, pct_counts_from_controls, filter_on_total_counts, filter_on_total_features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cells {
		_, err := stmt.Exec(
			run.ID, c.Cell,
			c.TotalCounts, c.Log10TotalCounts, c.TotalFeatures, c.PctCountsControls,
			boolToInt(c.FilterTotalCounts), boolToInt(c.FilterTotalFeatures),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run by ID. Returns nil when no such run exists.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, dataset, n_features, n_cells, depth_source, n_controls, n_mads, cells_flagged, created_at
		FROM qc_runs WHERE run_id = ?
	`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns all runs for a dataset, newest first.
func (s *Store) ListRuns(dataset string) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, dataset, n_features, n_cells, depth_source, n_controls, n_mads, cells_flagged, created_at
		FROM qc_runs WHERE dataset = ?
		ORDER BY created_at DESC
	`, dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// QueryCells queries one run's cell metrics with pagination and ordering.
func (s *Store) QueryCells(runID string, orderBy string, offset, limit int) ([]qc.CellRow, int, error) {
	orderCol := "total_counts DESC"
	switch orderBy {
	case "total_counts":
		orderCol = "total_counts DESC"
	case "total_features":
		orderCol = "total_features DESC"
	case "pct_counts_from_controls":
		orderCol = "pct_counts_from_controls DESC"
	case "cell":
		orderCol = "cell ASC"
	}

	var total int
	err := s.db.QueryRow("SELECT COUNT(*) FROM qc_cells WHERE run_id = ?", runID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT cell, total_counts, log10_total_counts, total_features, pct_counts_from_controls, filter_on_total_counts, filter_on_total_features
		FROM qc_cells
		WHERE run_id = ?
		ORDER BY %s
		LIMIT ? OFFSET ?
	`, orderCol)

	rows, err := s.db.Query(query, runID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var cells []qc.CellRow
	for rows.Next() {
		var c qc.CellRow
		var flagCounts, flagFeatures int
		err := rows.Scan(
			&c.Cell,
			&c.TotalCounts, &c.Log10TotalCounts, &c.TotalFeatures, &c.PctCountsControls,
			&flagCounts, &flagFeatures,
		)
		if err != nil {
			return nil, 0, err
		}
		c.FilterTotalCounts = flagCounts != 0
		c.FilterTotalFeatures = flagFeatures != 0
		cells = append(cells, c)
	}

	return cells, total, rows.Err()
}

// DeleteRun deletes a run and its cell metrics.
func (s *Store) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Delete cells first
	_, err := s.db.Exec("DELETE FROM qc_cells WHERE run_id = ?", runID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec("DELETE FROM qc_runs WHERE run_id = ?", runID)
	return err
}

// DeleteExpiredRuns deletes runs older than retentionDays.
func (s *Store) DeleteExpiredRuns(retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	_, err := s.db.Exec(`
		DELETE FROM qc_cells WHERE run_id IN (
			SELECT run_id FROM qc_runs WHERE created_at < ?
		)
	`, cutoff)
	if err != nil {
		return 0, err
	}

	result, err := s.db.Exec("DELETE FROM qc_runs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var createdAtStr string
	err := row.Scan(
		&run.ID,
		&run.Dataset,
		&run.NFeatures,
		&run.NCells,
		&run.DepthSource,
		&run.NControls,
		&run.NMADs,
		&run.CellsFlagged,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
