package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

func (r *Repository) SaveDocument(ctx context.Context, doc domain.KnowledgeDocument) error {
	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if doc.Tags == nil {
		tags = []byte("[]")
	}

	query := `
	INSERT INTO knowledge_documents (id, title, body, tags, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		title = excluded.title,
		body = excluded.body,
		tags = excluded.tags;
	`
	if _, err := r.db.ExecContext(ctx, query, doc.ID, doc.Title, doc.Body, string(tags), doc.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, id string) (domain.KnowledgeDocument, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, body, tags, created_at FROM knowledge_documents WHERE id = ?`, id)

	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.KnowledgeDocument{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return doc, err
}

// SearchDocuments scores every document by how many query terms appear in
// its title (weight 2), tags (weight 2) and body (weight 1).
func (r *Repository) SearchDocuments(ctx context.Context, query string, limit int) ([]domain.KnowledgeHit, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []domain.KnowledgeHit{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	parts := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms)*3+1)
	for _, term := range terms {
		parts = append(parts,
			"(CASE WHEN title ILIKE ? THEN 2 ELSE 0 END + CASE WHEN tags ILIKE ? THEN 2 ELSE 0 END + CASE WHEN body ILIKE ? THEN 1 ELSE 0 END)")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(`
	SELECT id, title, body, tags, created_at, score FROM (
		SELECT id, title, body, tags, created_at, (%s) AS score FROM knowledge_documents
	) WHERE score > 0
	ORDER BY score DESC, created_at DESC
	LIMIT ?`, strings.Join(parts, " + "))

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	hits := []domain.KnowledgeHit{}
	for rows.Next() {
		var score int64
		doc, err := scanDocument(func(dest ...interface{}) error {
			return rows.Scan(append(dest, &score)...)
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, domain.KnowledgeHit{Document: doc, Score: int(score)})
	}
	return hits, rows.Err()
}

func scanDocument(scan func(dest ...interface{}) error) (domain.KnowledgeDocument, error) {
	var doc domain.KnowledgeDocument
	var tags string
	if err := scan(&doc.ID, &doc.Title, &doc.Body, &tags, &doc.CreatedAt); err != nil {
		return domain.KnowledgeDocument{}, err
	}
	if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
		return domain.KnowledgeDocument{}, fmt.Errorf("decode tags of %s: %w", doc.ID, err)
	}
	return doc, nil
}

// searchTerms lowercases the query and keeps alphanumeric words of two or
// more characters, deduplicated. LIKE wildcards cannot survive this.
func searchTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}
