package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is the storage format for timestamps. Fixed-width fractions
// keep lexical order equal to time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultListLimit caps List when no positive limit is given.
const DefaultListLimit = 50

// Run is one stored mapping run.
type Run struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	SourceCount    int       `json:"source_count"`
	TargetCount    int       `json:"target_count"`
	MatchedCount   int       `json:"matched_count"`
	UnmatchedCount int       `json:"unmatched_count"`
	Threshold      float64   `json:"threshold"`

	// Matches and Unmatched are populated by Get and Latest only.
	Matches   []Match  `json:"matches,omitempty"`
	Unmatched []string `json:"unmatched,omitempty"`
}

// Match is one matched device within a run.
type Match struct {
	SourceName   string  `json:"source_name"`
	TargetName   string  `json:"target_name"`
	IP           string  `json:"ip"`
	MAC          string  `json:"mac"`
	Manufacturer string  `json:"manufacturer"`
	Model        string  `json:"model"`
	ConfigURL    string  `json:"config_url"`
	Score        float64 `json:"score"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// Repository defines run persistence.
type Repository interface {
	// Save stores a run with its matches. An empty ID is filled in.
	Save(ctx context.Context, run *Run) error

	// Get returns a run with its matches and unmatched names.
	// Returns ErrRunNotFound if the run does not exist.
	Get(ctx context.Context, id string) (*Run, error)

	// Latest returns the most recently started run with its matches.
	// Returns ErrRunNotFound when nothing has been stored.
	Latest(ctx context.Context) (*Run, error)

	// List returns run summaries, newest first, without matches.
	List(ctx context.Context, limit int) ([]Run, error)

	// Matches returns the matches of one run in stored order.
	Matches(ctx context.Context, runID string) ([]Match, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The schema must already be migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save stores the run, its matches and its unmatched names in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, run *Run) error {
	if run == nil || run.StartedAt.IsZero() {
		return fmt.Errorf("%w: started_at is required", ErrInvalidRun)
	}
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, source_count, target_count,
			matched_count, unmatched_count, threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.SourceCount,
		run.TargetCount,
		run.MatchedCount,
		run.UnmatchedCount,
		run.Threshold,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRunExists
		}
		return fmt.Errorf("inserting run: %w", err)
	}

	matchStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO matches (run_id, position, source_name, target_name, ip, mac,
			manufacturer, model, config_url, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing match insert: %w", err)
	}
	defer matchStmt.Close()

	for i, m := range run.Matches {
		if _, err := matchStmt.ExecContext(ctx,
			run.ID, i, m.SourceName, m.TargetName, m.IP, m.MAC,
			m.Manufacturer, m.Model, m.ConfigURL, m.Score,
		); err != nil {
			return fmt.Errorf("inserting match %q: %w", m.SourceName, err)
		}
	}

	for _, name := range run.Unmatched {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO unmatched (run_id, source_name) VALUES (?, ?)",
			run.ID, name,
		); err != nil {
			return fmt.Errorf("inserting unmatched %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, source_count, target_count,
	matched_count, unmatched_count, threshold`

// Get returns a run with its matches and unmatched names.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	return r.loadRun(ctx, row)
}

// Latest returns the most recently started run with its matches.
func (r *SQLiteRepository) Latest(ctx context.Context) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1")
	return r.loadRun(ctx, row)
}

// List returns run summaries, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Matches returns the matches of one run in stored order.
func (r *SQLiteRepository) Matches(ctx context.Context, runID string) ([]Match, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source_name, target_name, ip, mac, manufacturer, model, config_url, score
		FROM matches
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.SourceName, &m.TargetName, &m.IP, &m.MAC,
			&m.Manufacturer, &m.Model, &m.ConfigURL, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

func (r *SQLiteRepository) unmatched(ctx context.Context, runID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT source_name FROM unmatched WHERE run_id = ? ORDER BY rowid", runID)
	if err != nil {
		return nil, fmt.Errorf("querying unmatched: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning unmatched: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unmatched: %w", err)
	}
	return names, nil
}

func (r *SQLiteRepository) loadRun(ctx context.Context, row *sql.Row) (*Run, error) {
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	if run.Matches, err = r.Matches(ctx, run.ID); err != nil {
		return nil, err
	}
	if run.Unmatched, err = r.unmatched(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run               Run
		started, finished string
	)
	if err := s.Scan(&run.ID, &started, &finished, &run.SourceCount, &run.TargetCount,
		&run.MatchedCount, &run.UnmatchedCount, &run.Threshold); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}
	return &run, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
