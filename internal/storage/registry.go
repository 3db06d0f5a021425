package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
)

// ErrNoActiveModel signals that no active version exists for a model kind.
var ErrNoActiveModel = errors.New("no active model version")

// ActiveModel returns the active record for a kind, or ErrNoActiveModel.
func (s *Store) ActiveModel(ctx context.Context, kind models.ModelKind) (models.ModelRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, version, built_at, status
		FROM model_records
		WHERE kind = ? AND status = ?`, string(kind), string(models.ModelStatusActive))
	rec, err := scanModelRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ModelRecord{}, ErrNoActiveModel
	}
	return rec, err
}

// RegisterModel inserts a model record, typically as a candidate.
func (s *Store) RegisterModel(ctx context.Context, rec models.ModelRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_records (kind, version, built_at, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, version) DO UPDATE SET built_at = excluded.built_at, status = excluded.status`,
		string(rec.Kind), rec.Version, rec.BuiltAt.UTC().Format(time.RFC3339Nano), string(rec.Status))
	if err != nil {
		return fmt.Errorf("register model %s/%s: %w", rec.Kind, rec.Version, err)
	}
	return nil
}

// PromoteModel atomically retires the currently active version of kind and
// marks version active in a single transaction. The version row is created if
// the training collaborator never registered it as a candidate.
func (s *Store) PromoteModel(ctx context.Context, kind models.ModelKind, version string, builtAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin promote transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE model_records SET status = ? WHERE kind = ? AND status = ?`,
		string(models.ModelStatusRetired), string(kind), string(models.ModelStatusActive)); err != nil {
		tx.Rollback()
		return fmt.Errorf("retire active %s model: %w", kind, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO model_records (kind, version, built_at, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, version) DO UPDATE SET status = excluded.status`,
		string(kind), version, builtAt.UTC().Format(time.RFC3339Nano), string(models.ModelStatusActive)); err != nil {
		tx.Rollback()
		return fmt.Errorf("activate %s model %s: %w", kind, version, err)
	}

	return tx.Commit()
}

// ListModels returns every record for a kind ordered by build time descending.
func (s *Store) ListModels(ctx context.Context, kind models.ModelKind) ([]models.ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, version, built_at, status
		FROM model_records
		WHERE kind = ?
		ORDER BY built_at DESC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s models: %w", kind, err)
	}
	defer rows.Close()

	var records []models.ModelRecord
	for rows.Next() {
		var rec models.ModelRecord
		var kindStr, builtAt, status string
		if err := rows.Scan(&kindStr, &rec.Version, &builtAt, &status); err != nil {
			return nil, fmt.Errorf("scan model record: %w", err)
		}
		rec.Kind = models.ModelKind(kindStr)
		rec.Status = models.ModelStatus(status)
		t, err := time.Parse(time.RFC3339Nano, builtAt)
		if err != nil {
			return nil, fmt.Errorf("parse built_at for %s/%s: %w", rec.Kind, rec.Version, err)
		}
		rec.BuiltAt = t
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanModelRecord(row *sql.Row) (models.ModelRecord, error) {
	var rec models.ModelRecord
	var kind, builtAt, status string
	if err := row.Scan(&kind, &rec.Version, &builtAt, &status); err != nil {
		return models.ModelRecord{}, err
	}
	rec.Kind = models.ModelKind(kind)
	rec.Status = models.ModelStatus(status)
	t, err := time.Parse(time.RFC3339Nano, builtAt)
	if err != nil {
		return models.ModelRecord{}, fmt.Errorf("parse built_at: %w", err)
	}
	rec.BuiltAt = t
	return rec, nil
}
