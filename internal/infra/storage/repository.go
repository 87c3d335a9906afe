package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/seedscan/internal/core/domain"
)

var (
	// ErrResultNotFound is returned when a result document doesn't exist
	ErrResultNotFound = errors.New("result not found")
)

// ResultRepository stores expansion result documents
type ResultRepository interface {
	// Save stores a document, assigning an ID when it has none
	Save(ctx context.Context, doc *domain.ResultDocument) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.ResultDocument, error)

	// ListRecent returns up to limit documents, newest first
	ListRecent(ctx context.Context, limit int) ([]*domain.ResultDocument, error)

	// DeleteOlderThan removes documents created before the cutoff
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
