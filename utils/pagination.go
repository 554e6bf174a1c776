package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const maxPageSize = 200

// Pagination carries page/limit from the query string and the total once counted.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination clamps page and limit to sane values.
func NewPagination(page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return Pagination{Page: page, Limit: limit}
}

// PaginationFromQuery reads ?page= and ?limit= with defaultLimit as fallback.
func PaginationFromQuery(c *fiber.Ctx, defaultLimit int) Pagination {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(defaultLimit)))
	return NewPagination(page, limit)
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// WithTotal returns a copy carrying total and the derived page count.
func (p Pagination) WithTotal(total int64) Pagination {
	p.Total = total
	if p.Limit > 0 {
		p.Pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return p
}

// Paginate is a GORM scope applying offset/limit.
func Paginate(p Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.Limit)
	}
}

// FixedPage reads ?page= and uses a fixed page size.
func FixedPage(c *fiber.Ctx, size int) Pagination {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	return NewPagination(page, size)
}
