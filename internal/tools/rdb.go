package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const defaultRDBScore = 0.7

// RDBClient serves numeric and statistical queries out of the relational
// documents table populated by the ingestion side.
type RDBClient struct {
	db    *sql.DB
	limit int
}

func NewRDBClient(db *sql.DB, limit int) *RDBClient {
	if limit <= 0 {
		limit = 5
	}
	return &RDBClient{db: db, limit: limit}
}

func (c *RDBClient) Name() Name { return RDB }

func (c *RDBClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c.db == nil {
		return nil, fmt.Errorf("relational store is not configured")
	}
	terms := keywordTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	// Keyword containment over title+body; the ingestion pipeline maintains
	// the table, this adapter only reads it.
	clauses := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms)+1)
	for _, term := range terms {
		clauses = append(clauses, "(lower(title) LIKE ? OR lower(body) LIKE ?)")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, c.limit)

	sqlQuery := `SELECT id, title, body, doc_type, source_url, created_at
FROM documents
WHERE ` + strings.Join(clauses, " OR ") + `
ORDER BY created_at DESC
LIMIT ?`

	rows, err := c.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, c.limit)
	now := time.Now().UTC()
	for rows.Next() {
		var id, title, body, docType, sourceURL, createdAt string
		if err := rows.Scan(&id, &title, &body, &docType, &sourceURL, &createdAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		timestamp := now
		if parsed, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
			timestamp = parsed
		}
		results = append(results, SearchResult{
			Source:    RDB,
			Title:     strings.TrimSpace(title),
			Content:   strings.TrimSpace(body),
			URL:       strings.TrimSpace(sourceURL),
			Score:     defaultRDBScore,
			Timestamp: timestamp,
			Metadata: map[string]string{
				"document_id": id,
				"doc_type":    docType,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return results, nil
}

func keywordTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(query)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) < 3 {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		terms = append(terms, field)
		if len(terms) >= 6 {
			break
		}
	}
	return terms
}
