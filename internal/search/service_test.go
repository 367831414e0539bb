package search

import (
	"context"
	"errors"
	"testing"
)

type fakeSearcher struct {
	healthy bool
	results []Result
	err     error
}

func (f *fakeSearcher) Search(Query) ([]Result, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

func (f *fakeSearcher) IndexDoubt(DoubtRecord) error    { return nil }
func (f *fakeSearcher) IndexDoubts([]DoubtRecord) error { return nil }

type fakeFallback struct {
	results []Result
	err     error
	called  bool
}

func (f *fakeFallback) Search(context.Context, Query) ([]Result, int, error) {
	f.called = true
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeFallback) LoadAll(context.Context) ([]DoubtRecord, error) { return nil, nil }

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeSearcher{
		healthy: true,
		results: []Result{{ID: "dbt_1", Subject: "Physics"}},
	}
	fb := &fakeFallback{results: []Result{{ID: "dbt_fallback"}}}
	svc := &Service{primary: primary, fallback: fb}

	resp := svc.Search(context.Background(), Query{Text: "physics", OwnerID: "usr_1"})

	if len(resp.Results) != 1 || resp.Results[0].ID != "dbt_1" {
		t.Fatalf("results = %v, want primary hit", resp.Results)
	}
	if fb.called {
		t.Error("fallback used although primary is healthy")
	}
}

func TestSearchFallsBackWhenPrimaryUnhealthy(t *testing.T) {
	primary := &fakeSearcher{healthy: false}
	fb := &fakeFallback{results: []Result{{ID: "dbt_fallback"}}}
	svc := &Service{primary: primary, fallback: fb}

	resp := svc.Search(context.Background(), Query{Text: "physics"})

	if !fb.called {
		t.Fatal("fallback not used")
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "dbt_fallback" {
		t.Fatalf("results = %v, want fallback hit", resp.Results)
	}
}

func TestSearchFallsBackOnPrimaryError(t *testing.T) {
	primary := &fakeSearcher{healthy: true, err: errors.New("meili down")}
	fb := &fakeFallback{results: []Result{{ID: "dbt_fallback"}}}
	svc := &Service{primary: primary, fallback: fb}

	resp := svc.Search(context.Background(), Query{Text: "physics"})

	if !fb.called {
		t.Fatal("fallback not used after primary error")
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

func TestSearchNeverReturnsNilResults(t *testing.T) {
	fb := &fakeFallback{err: errors.New("db down")}
	svc := &Service{fallback: fb}

	resp := svc.Search(context.Background(), Query{Text: "anything"})

	if resp.Results == nil {
		t.Fatal("results must be an empty slice, not nil")
	}
	if len(resp.Results) != 0 {
		t.Errorf("results = %v, want empty", resp.Results)
	}
}

func TestNewServiceWithNilPrimary(t *testing.T) {
	svc := NewService(nil, &PgLike{})
	// A typed nil must not sneak into the interface field.
	if svc.primary != nil {
		t.Fatal("nil *Meili stored as non-nil searcher")
	}
}

func TestSnippetTruncation(t *testing.T) {
	if got := snippet("short", 10); got != "short" {
		t.Errorf("snippet(%q) = %q, want unchanged", "short", got)
	}
	if got := snippet("abcdefghij", 4); got != "abcd…" {
		t.Errorf("snippet truncation = %q, want %q", got, "abcd…")
	}
	// Truncation backs up to the last word boundary.
	if got := snippet("one two three", 9); got != "one two…" {
		t.Errorf("snippet word cut = %q, want %q", got, "one two…")
	}
}
