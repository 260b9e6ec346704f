package services

import "math"

// Pager normalizes paging input. Bad values fall back instead of failing.
type Pager struct {
	DefaultLimit int
	MaxLimit     int
}

func (p Pager) Page(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func (p Pager) Limit(limit int) int {
	switch {
	case limit < 1:
		return p.DefaultLimit
	case limit > p.MaxLimit:
		return p.MaxLimit
	}
	return limit
}

// Offset is (page-1)*limit, saturating at math.MaxInt so huge pages land
// past the end instead of wrapping negative.
func Offset(page, limit int) int {
	if page <= 1 || limit <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

// TotalPages is ceil(total/limit).
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
