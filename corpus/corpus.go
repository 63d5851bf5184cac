// Package corpus extracts the searchable document set from the retail
// database. Each product becomes one short description document that the
// vector index serves back to the retrieval path.
package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const productQuery = `
SELECT p.product_name,
       COALESCE(p.quantity_per_unit, ''),
       COALESCE(c.category_name, ''),
       COALESCE(c.description, '')
FROM products p
LEFT JOIN categories c ON c.category_id = p.category_id
ORDER BY p.product_id`

// Source reads product documents out of the retail database.
type Source struct {
	db *sql.DB
}

// NewSource wraps db as a document source.
func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

// Documents returns one description per product, category context included
// when the product has one.
func (s *Source) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, productQuery)
	if err != nil {
		return nil, fmt.Errorf("corpus: query products: %w", err)
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var name, quantity, category, categoryDesc string
		if err := rows.Scan(&name, &quantity, &category, &categoryDesc); err != nil {
			return nil, fmt.Errorf("corpus: scan product: %w", err)
		}
		docs = append(docs, formatDocument(name, quantity, category, categoryDesc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus: read products: %w", err)
	}
	return docs, nil
}

func formatDocument(name, quantity, category, categoryDesc string) string {
	var b strings.Builder
	b.WriteString(name)
	if category != "" {
		b.WriteString(" (")
		b.WriteString(category)
		b.WriteString(")")
	}
	b.WriteString(": ")
	if quantity != "" {
		b.WriteString(quantity)
	} else {
		b.WriteString("no packaging details")
	}
	if categoryDesc != "" {
		b.WriteString(". Category: ")
		b.WriteString(categoryDesc)
	}
	return b.String()
}
