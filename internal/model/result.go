package model

import (
	"time"

	"github.com/google/uuid"
)

// Result wraps a graded attempt behind an admin-controlled visibility flag.
// Publication never changes Score or Passed.
//
// Score is rounded to two places. Passed was decided on the exact ratio, so a
// Score that prints equal to the exam's pass score may still be a fail.
type Result struct {
	ID          uuid.UUID  `json:"id"`
	AttemptID   uuid.UUID  `json:"attempt_id"`
	UserID      int        `json:"user_id"`
	ExamID      uuid.UUID  `json:"exam_id"`
	Score       float64    `json:"score"`
	Passed      bool       `json:"passed"`
	IsPublished bool       `json:"is_published"`
	PublishedBy *int       `json:"published_by,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ResultFilter narrows result listings.
type ResultFilter struct {
	UserID *int
	ExamID *uuid.UUID
	// Published restricts to one publication state; nil lists both.
	Published *bool
	Page      int
	PerPage   int
}

// DefaultResultsPerPage applies when a listing does not ask for a page size.
const DefaultResultsPerPage = 20

// MaxResultsPerPage caps page size on listings.
const MaxResultsPerPage = 100

// Normalized clamps paging to valid bounds.
func (f ResultFilter) Normalized() ResultFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultResultsPerPage
	}
	if f.PerPage > MaxResultsPerPage {
		f.PerPage = MaxResultsPerPage
	}
	return f
}

// ListResultsQuery binds result listing query parameters.
type ListResultsQuery struct {
	Page      int    `form:"page" binding:"omitempty,gte=1"`
	PerPage   int    `form:"per_page" binding:"omitempty,gte=1,lte=100"`
	UserID    int    `form:"user_id" binding:"omitempty,gte=1"`
	ExamID    string `form:"exam_id" binding:"omitempty,uuid"`
	Published *bool  `form:"published"`
}
