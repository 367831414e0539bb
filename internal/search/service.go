package search

import (
	"context"
	"log"
)

// searcher abstracts the Meilisearch client so the fallback path is
// testable without a running server.
type searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
	IndexDoubt(record DoubtRecord) error
	IndexDoubts(records []DoubtRecord) error
}

type fallback interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	LoadAll(ctx context.Context) ([]DoubtRecord, error)
}

// Service tries Meilisearch first and falls back to the Postgres scan.
type Service struct {
	primary  searcher
	fallback fallback
}

// NewService creates a search service. primary may be nil when
// Meilisearch is not configured.
func NewService(primary *Meili, fb *PgLike) *Service {
	s := &Service{fallback: fb}
	if primary != nil {
		s.primary = primary
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDoubt pushes a doubt into the index, fire-and-forget. Indexing
// failures never surface to the write that triggered them.
func (s *Service) IndexDoubt(record DoubtRecord) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := s.primary.IndexDoubt(record); err != nil {
			log.Printf("search: index doubt %s: %v", record.ID, err)
		}
	}()
}

// ReindexAll reseeds the Meilisearch index from the primary store.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.primary == nil || !s.primary.Healthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAll(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.primary.IndexDoubts(records); err != nil {
		log.Printf("search: reindex failed: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
