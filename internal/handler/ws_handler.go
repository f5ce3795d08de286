package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/grading"
	"github.com/stemsi/exstem-grading/internal/middleware"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/response"
	"github.com/stemsi/exstem-grading/internal/service"
	ws "github.com/stemsi/exstem-grading/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams autosave and submit for one attempt over a WebSocket.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/candidate/attempts/:attempt_id/stream?token=...
// Each autosave and submit goes through the same state machine as the HTTP API.
func (h *WSHandler) AttemptStream(c *gin.Context) {
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

	// Ownership is checked before the upgrade so errors stay plain HTTP.
	view, err := h.attemptService.GetAttempt(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	if view.Attempt.Status != model.AttemptStatusInProgress {
		_ = ws.WriteTyped(conn, ws.NewSubmittedResponse(view.Attempt))
		return
	}

	wsLog.Info().Msg("Candidate connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		ctx := c.Request.Context()
		var done bool
		switch msg.Action {
		case ws.ActionAutosave:
			done = h.handleAutosave(ctx, conn, wsLog, claims.UserID, attemptID, view.Deadline, msg.Answers)
		case ws.ActionSubmit:
			done = h.handleSubmit(ctx, conn, wsLog, claims.UserID, attemptID, msg.Answers)
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
		if done {
			return
		}
	}
}

// handleAutosave merges answers. It reports true once the attempt has left
// IN_PROGRESS and the stream should close.
func (h *WSHandler) handleAutosave(
	ctx context.Context,
	conn *websocket.Conn,
	wsLog zerolog.Logger,
	userID int,
	attemptID uuid.UUID,
	deadline time.Time,
	raw map[string]int,
) bool {
	if len(raw) == 0 {
		_ = ws.WriteError(conn, string(response.ErrValidation), "answers are required")
		return false
	}
	answers, err := grading.ParseAnswers(raw)
	if err != nil {
		_ = ws.WriteError(conn, string(response.ErrInvalidAnswer), response.GetMessage(response.ErrInvalidAnswer))
		return false
	}

	attempt, err := h.attemptService.SaveAnswers(ctx, userID, attemptID, answers)
	if err != nil {
		return h.writeServiceError(conn, wsLog, err)
	}
	if attempt.Status != model.AttemptStatusInProgress {
		_ = ws.WriteTyped(conn, ws.NewSubmittedResponse(attempt.Redacted()))
		return true
	}

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	_ = ws.WriteTyped(conn, ws.SavedResponse{
		Event:            ws.EventSaved,
		Version:          attempt.Version,
		Answered:         len(attempt.Answers),
		RemainingSeconds: remaining.Seconds(),
	})
	return false
}

// handleSubmit resolves the attempt. An empty sheet submits what is stored.
func (h *WSHandler) handleSubmit(
	ctx context.Context,
	conn *websocket.Conn,
	wsLog zerolog.Logger,
	userID int,
	attemptID uuid.UUID,
	raw map[string]int,
) bool {
	var answers model.Answers
	if len(raw) > 0 {
		parsed, err := grading.ParseAnswers(raw)
		if err != nil {
			_ = ws.WriteError(conn, string(response.ErrInvalidAnswer), response.GetMessage(response.ErrInvalidAnswer))
			return false
		}
		answers = parsed
	} else {
		view, err := h.attemptService.GetAttempt(ctx, userID, attemptID)
		if err != nil {
			return h.writeServiceError(conn, wsLog, err)
		}
		answers = view.Attempt.Answers
	}

	attempt, err := h.attemptService.Submit(ctx, userID, attemptID, answers)
	if err != nil {
		return h.writeServiceError(conn, wsLog, err)
	}

	wsLog.Info().
		Str("resolved_as", string(attempt.ResolvedAs)).
		Bool("late", attempt.Late).
		Msg("Attempt submitted over WebSocket")
	_ = ws.WriteTyped(conn, ws.NewSubmittedResponse(attempt.Redacted()))
	return true
}

// writeServiceError reports err to the client and tells the caller whether the
// stream should end.
func (h *WSHandler) writeServiceError(conn *websocket.Conn, wsLog zerolog.Logger, err error) bool {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		wsLog.Error().Err(err).Msg("WebSocket action failed")
	}
	_ = ws.WriteError(conn, string(code), response.GetMessage(code))
	return code == response.ErrAttemptAlreadySubmitted || code == response.ErrAttemptNotFound
}
