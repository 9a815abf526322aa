package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"gofactor/domain/core"
	"gofactor/domain/run"
	apperrors "gofactor/internal/errors"
	"gofactor/ports"
)

// RunRepositoryImpl implements RunRepository for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

type runRow struct {
	RunID     string         `db:"run_id"`
	Manifest  []byte         `db:"manifest"`
	Selection []byte         `db:"selection"`
	Report    sql.NullString `db:"report"`
	CreatedAt time.Time      `db:"created_at"`
}

// SaveRun upserts a run by its id
func (r *RunRepositoryImpl) SaveRun(ctx context.Context, record *ports.RunRecord) error {
	if record == nil || record.Manifest == nil {
		return apperrors.DatabaseError("run record has no manifest", nil)
	}
	m := record.Manifest
	if err := m.Validate(); err != nil {
		return apperrors.DatabaseError("invalid run manifest", err)
	}

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return apperrors.DatabaseError("failed to encode manifest", err)
	}
	selectionJSON, err := json.Marshal(record.Selection)
	if err != nil {
		return apperrors.DatabaseError("failed to encode selection", err)
	}
	var report sql.NullString
	if len(record.Report) > 0 {
		report = sql.NullString{String: string(record.Report), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO factor_runs (
			run_id, fingerprint, dataset_hash, config_hash, seed, path, mode,
			code_version, manifest, selection, report, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id) DO UPDATE SET
			selection = EXCLUDED.selection,
			report = EXCLUDED.report`,
		m.RunID.String(), m.Fingerprint.Fingerprint, m.DatasetHash.String(), m.ConfigHash.String(),
		m.Seed, string(m.Path), m.Mode, m.CodeVersion,
		string(manifestJSON), string(selectionJSON), report, m.CreatedAt.Time())
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("failed to save run %s", m.RunID), err)
	}
	return nil
}

// GetRun retrieves a run by id
func (r *RunRepositoryImpl) GetRun(ctx context.Context, runID core.RunID) (*ports.RunRecord, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, manifest, selection, report, created_at
		FROM factor_runs
		WHERE run_id = $1
	`, runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.DatabaseError(fmt.Sprintf("run %s not found", runID), err)
	}
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to load run %s", runID), err)
	}
	return row.record()
}

// ListRuns returns the most recent manifests first
func (r *RunRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]*run.RunManifest, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, manifest, selection, report, created_at
		FROM factor_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list runs", err)
	}

	manifests := make([]*run.RunManifest, 0, len(rows))
	for _, row := range rows {
		var m run.RunManifest
		if err := json.Unmarshal(row.Manifest, &m); err != nil {
			return nil, apperrors.DatabaseError(fmt.Sprintf("failed to decode manifest of run %s", row.RunID), err)
		}
		manifests = append(manifests, &m)
	}
	return manifests, nil
}

func (row runRow) record() (*ports.RunRecord, error) {
	rec := &ports.RunRecord{Manifest: &run.RunManifest{}}
	if err := json.Unmarshal(row.Manifest, rec.Manifest); err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to decode manifest of run %s", row.RunID), err)
	}
	if err := json.Unmarshal(row.Selection, &rec.Selection); err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to decode selection of run %s", row.RunID), err)
	}
	if row.Report.Valid {
		rec.Report = json.RawMessage(row.Report.String)
	}
	return rec, nil
}
