package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/response"
	"github.com/stemsi/exstem-grading/internal/service"
)

// AdminHandler handles operator endpoints around the attempt lifecycle.
type AdminHandler struct {
	attemptService *service.AttemptService
	sweepService   *service.SweepService
	catalog        *service.CachedExamCatalog
	log            zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	attemptService *service.AttemptService,
	sweepService *service.SweepService,
	catalog *service.CachedExamCatalog,
	log zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		attemptService: attemptService,
		sweepService:   sweepService,
		catalog:        catalog,
		log:            log.With().Str("component", "admin_handler").Logger(),
	}
}

// RunSweep godoc
// POST /api/v1/admin/attempts/sweep
// Runs the expiry sweep now and returns its report. 409 while another run holds the lock.
func (h *AdminHandler) RunSweep(c *gin.Context) {
	report, err := h.sweepService.RunExpirySweep(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// ForceSubmit godoc
// POST /api/v1/admin/attempts/:attempt_id/force-submit
// Resolves an in-progress attempt with its stored answers.
func (h *AdminHandler) ForceSubmit(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.ForceSubmit(c.Request.Context(), attemptID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// RefreshExamCache godoc
// POST /api/v1/admin/exams/:exam_id/refresh-cache
func (h *AdminHandler) RefreshExamCache(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.catalog.Refresh(c.Request.Context(), examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"exam_id":   exam.ID,
		"questions": len(exam.Questions),
	})
}
