package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/infra/storage"
)

// ResultRepo implements storage.ResultRepository using a JSONB column.
type ResultRepo struct {
	db *DB
}

// NewResultRepo creates a new PostgreSQL result repository.
func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

type resultRow struct {
	Document []byte `db:"document"`
}

const insertResult = `
INSERT INTO random_scans (id, created_at, source, root_fingerprint, with_activity, balance_sats, document)
VALUES (:id, :created_at, :source, :root_fingerprint, :with_activity, :balance_sats, :document)
ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document`

// Save saves a result document to the database.
func (r *ResultRepo) Save(ctx context.Context, doc *domain.ResultDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = r.db.NamedExecContext(ctx, insertResult, map[string]any{
		"id":               doc.ID,
		"created_at":       doc.CreatedAt,
		"source":           string(doc.Source),
		"root_fingerprint": doc.ExtendedKeys.RootFingerprint,
		"with_activity":    doc.Totals.WithActivity,
		"balance_sats":     doc.Totals.BalanceSats,
		"document":         raw,
	})
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// Get retrieves a result document by ID.
func (r *ResultRepo) Get(ctx context.Context, id string) (*domain.ResultDocument, error) {
	var row resultRow
	err := r.db.GetContext(ctx, &row, `SELECT document FROM random_scans WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return decodeResult(row.Document)
}

// ListRecent returns the newest documents first.
func (r *ResultRepo) ListRecent(ctx context.Context, limit int) ([]*domain.ResultDocument, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []resultRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT document FROM random_scans ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	docs := make([]*domain.ResultDocument, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeResult(row.Document)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteOlderThan removes documents created before the cutoff.
func (r *ResultRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM random_scans WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete results: %w", err)
	}
	return res.RowsAffected()
}

func decodeResult(raw []byte) (*domain.ResultDocument, error) {
	var doc domain.ResultDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &doc, nil
}
