package database

import (
	"context"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps page*size within int for every accepted size.
	MaxPage = math.MaxInt / MaxPageSize
)

// Page is one slice of a search result plus the total number of matches.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// NormalizePage clamps a zero-based page number and a page size into range.
func NormalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type Queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

// Count returns the number of rows in table matching p.
func Count(ctx context.Context, db Queryer, table string, p Predicate) (int64, error) {
	where, args := p.SQL()
	var n int64
	if err := sqlx.GetContext(ctx, db, &n, db.Rebind("SELECT COUNT(*) FROM "+table+where), args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Search runs a filtered, paged select ordered by id.
func Search[T any](ctx context.Context, db *sqlx.DB, table, columns string, p Predicate, page, size int) (Page[T], error) {
	page, size = NormalizePage(page, size)
	total, err := Count(ctx, db, table, p)
	if err != nil {
		return Page[T]{}, err
	}
	where, args := p.SQL()
	q := "SELECT " + columns + " FROM " + table + where + " ORDER BY id LIMIT ? OFFSET ?"
	items := make([]T, 0)
	if err := db.SelectContext(ctx, &items, db.Rebind(q), append(args, size, page*size)...); err != nil {
		return Page[T]{}, fmt.Errorf("search %s: %w", table, err)
	}
	return Page[T]{Items: items, Total: total, Page: page, PageSize: size}, nil
}
