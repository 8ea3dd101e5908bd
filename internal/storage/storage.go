package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for unknown comparison IDs.
var ErrNotFound = errors.New("comparison not found")

// Store wraps SQLite-backed persistence for comparison history.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS comparisons (
            id TEXT PRIMARY KEY,
            left_path TEXT NOT NULL,
            right_path TEXT NOT NULL,
            mode TEXT,
            status TEXT NOT NULL,
            offset_ax INTEGER,
            offset_ay INTEGER,
            offset_bx INTEGER,
            offset_by INTEGER,
            badness INTEGER,
            duration_ms INTEGER,
            output_path TEXT,
            error_message TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            finished_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_created_at ON comparisons(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_status ON comparisons(status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Comparison captures one persisted comparison run.
type Comparison struct {
	ID         string
	Left       string
	Right      string
	Mode       string
	Status     string
	OffsetAX   int
	OffsetAY   int
	OffsetBX   int
	OffsetBY   int
	Badness    int64
	DurationMS int64
	OutputPath string
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Finish carries the fields RecordFinished writes.
type Finish struct {
	Badness    int64
	OffsetAX   int
	OffsetAY   int
	OffsetBX   int
	OffsetBY   int
	DurationMS int64
	OutputPath string
}

// Stats summarizes the history table.
type Stats struct {
	Total         int
	Queued        int
	Running       int
	Completed     int
	Failed        int
	AvgDurationMS float64
}

// RecordQueued inserts a pending comparison.
func (s *Store) RecordQueued(rec Comparison) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO comparisons (id, left_path, right_path, mode, status) VALUES (?, ?, ?, ?, 'queued');`,
		rec.ID, rec.Left, rec.Right, rec.Mode)
	return err
}

// RecordStarted marks a comparison as running.
func (s *Store) RecordStarted(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE comparisons SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordFinished finalizes a successful comparison.
func (s *Store) RecordFinished(id string, fin Finish) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE comparisons SET status='completed', finished_at=CURRENT_TIMESTAMP,
        offset_ax=?, offset_ay=?, offset_bx=?, offset_by=?, badness=?, duration_ms=?, output_path=?
        WHERE id=?;`,
		fin.OffsetAX, fin.OffsetAY, fin.OffsetBX, fin.OffsetBY, fin.Badness, fin.DurationMS, fin.OutputPath, id)
	return err
}

// RecordFailed finalizes a failed comparison.
func (s *Store) RecordFailed(id string, errMsg string, durationMS int64) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE comparisons SET status='failed', finished_at=CURRENT_TIMESTAMP, error_message=?, duration_ms=? WHERE id=?;`,
		errMsg, durationMS, id)
	return err
}

const comparisonColumns = `id, left_path, right_path, mode, status,
    offset_ax, offset_ay, offset_bx, offset_by, badness, duration_ms,
    output_path, error_message, created_at, started_at, finished_at`

// ListRecent returns the latest comparisons up to limit, newest first.
func (s *Store) ListRecent(limit int) ([]Comparison, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT `+comparisonColumns+` FROM comparisons ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Comparison
	for rows.Next() {
		rec, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Get fetches a single comparison by ID.
func (s *Store) Get(id string) (*Comparison, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	row := s.DB.QueryRow(`SELECT `+comparisonColumns+` FROM comparisons WHERE id=?;`, id)
	rec, err := scanComparison(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Stats aggregates history counts and the mean completed duration.
func (s *Store) Stats() (Stats, error) {
	if s == nil {
		return Stats{}, errors.New("store not initialized")
	}
	var st Stats
	rows, err := s.DB.Query(`SELECT status, COUNT(*) FROM comparisons GROUP BY status;`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		st.Total += n
		switch status {
		case "queued":
			st.Queued = n
		case "running":
			st.Running = n
		case "completed":
			st.Completed = n
		case "failed":
			st.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	var avg sql.NullFloat64
	if err := s.DB.QueryRow(`SELECT AVG(duration_ms) FROM comparisons WHERE status='completed';`).Scan(&avg); err != nil {
		return Stats{}, err
	}
	if avg.Valid {
		st.AvgDurationMS = avg.Float64
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComparison(row rowScanner) (Comparison, error) {
	var rec Comparison
	var mode, output, errorMsg sql.NullString
	var ax, ay, bx, by, badness, duration sql.NullInt64
	var created time.Time
	var started, finished sql.NullTime

	err := row.Scan(&rec.ID, &rec.Left, &rec.Right, &mode, &rec.Status,
		&ax, &ay, &bx, &by, &badness, &duration,
		&output, &errorMsg, &created, &started, &finished)
	if err != nil {
		return Comparison{}, err
	}
	rec.Mode = mode.String
	rec.OffsetAX = int(ax.Int64)
	rec.OffsetAY = int(ay.Int64)
	rec.OffsetBX = int(bx.Int64)
	rec.OffsetBY = int(by.Int64)
	rec.Badness = badness.Int64
	rec.DurationMS = duration.Int64
	rec.OutputPath = output.String
	rec.Error = errorMsg.String
	rec.CreatedAt = created
	if started.Valid {
		rec.StartedAt = &started.Time
	}
	if finished.Valid {
		rec.FinishedAt = &finished.Time
	}
	return rec, nil
}
