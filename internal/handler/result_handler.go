package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/middleware"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/response"
	"github.com/stemsi/exstem-grading/internal/service"
	"github.com/stemsi/exstem-grading/internal/validator"
)

// ResultHandler serves result listings and the publication workflow.
type ResultHandler struct {
	resultService *service.ResultService
	log           zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(resultService *service.ResultService, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		resultService: resultService,
		log:           log.With().Str("component", "result_handler").Logger(),
	}
}

// ListMine godoc
// GET /api/v1/candidate/results?page=1&per_page=20
// Returns the caller's published results only.
func (h *ResultHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.ListResultsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	f := model.ResultFilter{Page: q.Page, PerPage: q.PerPage}.Normalized()
	results, total, err := h.resultService.GetResults(c.Request.Context(), claims.UserID, f.Page, f.PerPage)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, results, response.NewPagination(f.Page, f.PerPage, total))
}

// List godoc
// GET /api/v1/admin/results?exam_id=&user_id=&published=&page=&per_page=
func (h *ResultHandler) List(c *gin.Context) {
	var q model.ListResultsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	f := model.ResultFilter{Page: q.Page, PerPage: q.PerPage, Published: q.Published}.Normalized()
	if q.UserID > 0 {
		f.UserID = &q.UserID
	}
	if q.ExamID != "" {
		examID, err := uuid.Parse(q.ExamID)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		f.ExamID = &examID
	}

	results, total, err := h.resultService.ListAll(c.Request.Context(), f)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, results, response.NewPagination(f.Page, f.PerPage, total))
}

// Get godoc
// GET /api/v1/admin/results/:result_id
func (h *ResultHandler) Get(c *gin.Context) {
	resultID, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.resultService.Get(c.Request.Context(), resultID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// Publish godoc
// POST /api/v1/admin/results/:result_id/publish
func (h *ResultHandler) Publish(c *gin.Context) {
	h.setPublication(c, true)
}

// Unpublish godoc
// POST /api/v1/admin/results/:result_id/unpublish
func (h *ResultHandler) Unpublish(c *gin.Context) {
	h.setPublication(c, false)
}

func (h *ResultHandler) setPublication(c *gin.Context, published bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	resultID, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var res *model.Result
	if published {
		res, err = h.resultService.Publish(c.Request.Context(), resultID, claims.UserID)
	} else {
		res, err = h.resultService.Unpublish(c.Request.Context(), resultID, claims.UserID)
	}
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}
