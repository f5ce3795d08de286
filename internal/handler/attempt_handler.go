package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/grading"
	"github.com/stemsi/exstem-grading/internal/middleware"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/response"
	"github.com/stemsi/exstem-grading/internal/service"
	"github.com/stemsi/exstem-grading/internal/validator"
)

// AttemptHandler handles candidate-facing attempt endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
	resultService  *service.ResultService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, resultService *service.ResultService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		resultService:  resultService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/candidate/exams/:exam_id/attempts
// Starts a new attempt or resumes the in-progress one (idempotent).
func (h *AttemptHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.attemptService.Start(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	status := http.StatusOK
	if !view.Resumed {
		status = http.StatusCreated
	}
	response.Success(c, status, h.candidateView(c, claims.UserID, view))
}

// Get godoc
// GET /api/v1/candidate/attempts/:attempt_id
// Returns the attempt with remaining time. Score appears only once published.
func (h *AttemptHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.attemptService.GetAttempt(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, h.candidateView(c, claims.UserID, view))
}

// SaveAnswers godoc
// PUT /api/v1/candidate/attempts/:attempt_id/answers
// Merges a partial answer sheet. Past the deadline the attempt is submitted
// automatically and returned resolved.
func (h *AttemptHandler) SaveAnswers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	answers, err := grading.ParseAnswers(req.Answers)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidAnswer)
		return
	}

	attempt, err := h.attemptService.SaveAnswers(c.Request.Context(), claims.UserID, attemptID, answers)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt.Redacted()})
}

// Submit godoc
// POST /api/v1/candidate/attempts/:attempt_id/submit
// Submits the final answer sheet. The graded score stays hidden until published.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	answers, err := grading.ParseAnswers(req.Answers)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidAnswer)
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), claims.UserID, attemptID, answers)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt.Redacted()})
}

// candidateView hides the score unless the candidate's result is published,
// in which case the result is attached.
func (h *AttemptHandler) candidateView(c *gin.Context, userID int, view *model.AttemptView) *model.AttemptView {
	out := *view
	out.Attempt = view.Attempt.Redacted()
	if view.Attempt.Status != model.AttemptStatusGraded {
		return &out
	}

	res, err := h.resultService.PublishedForAttempt(c.Request.Context(), userID, view.Attempt.ID)
	switch {
	case err == nil:
		out.Attempt = view.Attempt
		out.Result = res
	case errors.Is(err, service.ErrResultNotFound):
	default:
		h.log.Warn().Err(err).Str("attempt_id", view.Attempt.ID.String()).Msg("Failed to load published result")
	}
	return &out
}
