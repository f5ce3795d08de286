package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/response"
	"github.com/stemsi/exstem-grading/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live attempt events of one exam to administrators.
type MonitorHandler struct {
	rdb           *redis.Client
	exams         service.ExamCatalog
	resultService *service.ResultService
	log           zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	exams service.ExamCatalog,
	resultService *service.ResultService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:           rdb,
		exams:         exams,
		resultService: resultService,
		log:           log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
// Sends a snapshot, then forwards every attempt event published for the exam.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	exam, err := h.exams.GetExam(reqCtx, examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, exam)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON directly, no deserialization needed.
			writeSSEData(c, []byte(msg.Payload))

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func writeSSEData(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

// sendSnapshot writes the first SSE event: exam metadata and graded count.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, ctx context.Context, exam *model.Exam) {
	fetchCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	var totalGraded int64
	_, total, err := h.resultService.ListAll(fetchCtx, model.ResultFilter{ExamID: &exam.ID, PerPage: 1})
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to count graded attempts for snapshot")
	} else {
		totalGraded = total
	}

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"exam": gin.H{
				"id":              exam.ID,
				"title":           exam.Title,
				"duration":        exam.DurationMinutes,
				"pass_score":      exam.PassScore,
				"total_questions": len(exam.Questions),
			},
			"stats": gin.H{
				"total_graded": totalGraded,
			},
		},
	})
	c.Writer.Flush()
}
