package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/infra/storage"
)

// ResultRepo is an in-process storage.ResultRepository.
type ResultRepo struct {
	mu   sync.RWMutex
	docs map[string]domain.ResultDocument
}

func NewResultRepo() *ResultRepo {
	return &ResultRepo{docs: make(map[string]domain.ResultDocument)}
}

func (r *ResultRepo) Save(ctx context.Context, doc *domain.ResultDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = *doc
	return nil
}

func (r *ResultRepo) Get(ctx context.Context, id string) (*domain.ResultDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, storage.ErrResultNotFound
	}
	return &doc, nil
}

func (r *ResultRepo) ListRecent(ctx context.Context, limit int) ([]*domain.ResultDocument, error) {
	r.mu.RLock()
	out := make([]*domain.ResultDocument, 0, len(r.docs))
	for _, d := range r.docs {
		doc := d
		out = append(out, &doc)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ResultRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, d := range r.docs {
		if d.CreatedAt.Before(before) {
			delete(r.docs, id)
			n++
		}
	}
	return n, nil
}
