package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/response"
	"github.com/stemsi/exstem-grading/internal/service"
)

// serviceErrors maps sentinel service errors to HTTP status and API code.
var serviceErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrResultNotFound, http.StatusNotFound, response.ErrResultNotFound},
	{service.ErrAttemptAlreadySubmitted, http.StatusConflict, response.ErrAttemptAlreadySubmitted},
	{service.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
	{service.ErrInvalidState, http.StatusInternalServerError, response.ErrInvalidState},
	{service.ErrSweepInProgress, http.StatusConflict, response.ErrSweepInProgress},
	{service.ErrInvalidToken, http.StatusUnauthorized, response.ErrTokenInvalid},
}

// classify returns the status and code for err. Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWith writes the error response for a service error, logging the ones
// that are not the caller's fault.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", c.GetString(response.ContextKeyRequestID)).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
