package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run is one recorded generation.
type Run struct {
	ID             string     `json:"id"`
	Seq            int64      `json:"seq"`
	Problem        string     `json:"problem"`
	DescriptorHash string     `json:"descriptor_hash"`
	ProgramHash    string     `json:"program_hash"`
	Backend        string     `json:"backend"`
	Prefix         string     `json:"prefix"`
	OutDir         string     `json:"out_dir"`
	CreatedAt      time.Time  `json:"created_at"`
	Artifacts      []Artifact `json:"artifacts"`
}

// Artifact is one file written by a run.
type Artifact struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// RecordRun appends r to the ledger. ID (when empty), Seq and CreatedAt
// are assigned by the store; the stored run is returned.
func (s *Store) RecordRun(ctx context.Context, r Run) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&r.Seq); err != nil {
		return Run{}, fmt.Errorf("record run: next seq: %w", err)
	}
	if r.ID == "" {
		r.ID = s.ids.Generate()
	}
	r.CreatedAt = s.now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, problem, descriptor_hash, program_hash, backend, prefix, out_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Seq,
		r.Problem,
		r.DescriptorHash,
		r.ProgramHash,
		r.Backend,
		r.Prefix,
		r.OutDir,
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}

	for _, a := range r.Artifacts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (run_id, path, hash, size) VALUES (?, ?, ?, ?)
		`, r.ID, a.Path, a.Hash, a.Size); err != nil {
			return Run{}, fmt.Errorf("record artifact %s: %w", a.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run: commit: %w", err)
	}
	return r, nil
}

const runColumns = `id, seq, problem, descriptor_hash, program_hash, backend, prefix, out_dir, created_at`

// GetRun returns the run with the given id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if r.Artifacts, err = s.artifacts(ctx, r.ID); err != nil {
		return Run{}, err
	}
	return r, nil
}

// LatestByDescriptor returns the most recent run of a descriptor hash.
// ok is false when the descriptor was never generated.
func (s *Store) LatestByDescriptor(ctx context.Context, descriptorHash string) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE descriptor_hash = ?
		ORDER BY seq DESC
		LIMIT 1
	`, descriptorHash)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	if r.Artifacts, err = s.artifacts(ctx, r.ID); err != nil {
		return Run{}, false, err
	}
	return r, true, nil
}

// ListRuns returns the newest runs first. limit <= 0 returns all runs.
// Artifacts are not loaded.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (s *Store) artifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, hash, size FROM artifacts
		WHERE run_id = ?
		ORDER BY path COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	out := []Artifact{}
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Path, &a.Hash, &a.Size); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r       Run
		created string
	)
	err := row.Scan(&r.ID, &r.Seq, &r.Problem, &r.DescriptorHash, &r.ProgramHash,
		&r.Backend, &r.Prefix, &r.OutDir, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Run{}, fmt.Errorf("parse created_at of run %s: %w", r.ID, err)
	}
	return r, nil
}
