package incidents

import (
	"math"
	"strings"
	"time"

	"github.com/examdesk/incidentd/internal/domain"
)

// Pagination defaults.
const (
	DefaultPage      = 1
	DefaultLimit     = 10
	MaxLimit         = 100
	DefaultSortBy    = "createdAt"
	DefaultSortOrder = SortDesc
)

// SortOrder is the direction of a sort.
type SortOrder string

// Sort orders.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortFields are the keys accepted by PageRequest.SortBy.
var SortFields = map[string]bool{
	"id":         true,
	"createdAt":  true,
	"updatedAt":  true,
	"resolvedAt": true,
	"severity":   true,
	"status":     true,
	"type":       true,
	"title":      true,
}

// PageRequest selects a window of a sorted result set.
type PageRequest struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder SortOrder
}

// Normalize fills defaults, caps the limit and validates the sort key.
func (p PageRequest) Normalize() (PageRequest, error) {
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.Page < 1 {
		return p, ErrInvalidPage
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 1 {
		return p, ErrInvalidLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.SortBy == "" {
		p.SortBy = DefaultSortBy
	}
	if !SortFields[p.SortBy] {
		return p, ErrInvalidSortField
	}
	p.SortOrder = SortOrder(strings.ToLower(string(p.SortOrder)))
	if p.SortOrder == "" {
		p.SortOrder = DefaultSortOrder
	}
	if p.SortOrder != SortAsc && p.SortOrder != SortDesc {
		return p, ErrInvalidSortOrder
	}
	return p, nil
}

// Offset is the number of rows skipped before the page. It saturates at
// math.MaxInt when the page lies beyond any representable row.
func (p PageRequest) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// Pagination describes the page returned in a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes totalPages as ceil(total/limit).
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// ListResult is a page of incidents.
type ListResult struct {
	Incidents  []domain.IncidentView `json:"incidents"`
	Pagination Pagination            `json:"pagination"`
}

// Transform annotates a view with daysOpen and priority as of now.
// daysOpen is only set while the incident is not resolved or closed.
func Transform(v *domain.IncidentView, now time.Time) {
	v.Priority = v.Severity.Priority()
	v.DaysOpen = nil
	if v.Status.IsTerminal() {
		return
	}
	days := DaysBetween(v.CreatedAt, now)
	v.DaysOpen = &days
}

// DaysBetween returns the whole days elapsed from start to end, never negative.
func DaysBetween(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
