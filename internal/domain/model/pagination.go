package model

import "math"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	// MaxPage keeps Offset within int32 for any limit up to MaxPageLimit.
	MaxPage = math.MaxInt32 / MaxPageLimit
)

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// NormalizePage clamps page to [1, MaxPage] and limit to [1, MaxPageLimit], defaulting limit when unset.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func NewPagination(page, limit int, total int64) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return p
}

// Offset is the row offset for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}
