package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgLike is the fallback searcher: a plain ILIKE scan over the caller's
// own doubts. Always available because it reads the primary store.
type PgLike struct {
	db *sql.DB
}

func NewPgLike(db *sql.DB) *PgLike {
	return &PgLike{db: db}
}

func (p *PgLike) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	pattern := "%" + strings.TrimSpace(q.Text) + "%"

	rows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.subject, d.topic, d.description, d.status
		FROM doubts d
		WHERE (d.student_id = $1 OR d.teacher_id = $1)
			AND (d.subject ILIKE $2 OR d.topic ILIKE $2 OR d.description ILIKE $2
				OR EXISTS (
					SELECT 1 FROM doubt_replies r
					WHERE r.doubt_id = d.id AND r.message ILIKE $2
				))
		ORDER BY d.created_at DESC
		LIMIT $3
	`, q.OwnerID, pattern, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var description string
		if err := rows.Scan(&r.ID, &r.Subject, &r.Topic, &description, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		r.Snippet = snippet(description, 160)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search hits: %w", err)
	}
	return results, len(results), nil
}

// LoadAll reads every doubt as an index record, used to reseed Meilisearch.
func (p *PgLike) LoadAll(ctx context.Context) ([]DoubtRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.subject, d.topic, d.description, d.status, d.student_id, d.teacher_id,
			COALESCE((SELECT STRING_AGG(r.message, ' ' ORDER BY r.seq) FROM doubt_replies r WHERE r.doubt_id = d.id), '')
		FROM doubts d
	`)
	if err != nil {
		return nil, fmt.Errorf("load index records: %w", err)
	}
	defer rows.Close()

	records := make([]DoubtRecord, 0)
	for rows.Next() {
		var rec DoubtRecord
		if err := rows.Scan(&rec.ID, &rec.Subject, &rec.Topic, &rec.Description, &rec.Status, &rec.StudentID, &rec.TeacherID, &rec.Thread); err != nil {
			return nil, fmt.Errorf("scan index record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index records: %w", err)
	}
	return records, nil
}

func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
