package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sheets-etl/internal/dto"
	"github.com/noah-isme/sheets-etl/internal/models"
	"github.com/noah-isme/sheets-etl/internal/service"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
	"github.com/noah-isme/sheets-etl/pkg/response"
)

type pipelineRunner interface {
	RunAt(ctx context.Context, runAt time.Time) (*models.RunSummary, error)
}

type runHistory interface {
	History(ctx context.Context, date models.Date) ([]models.RunSummary, error)
}

// RunHandler starts pipeline runs and reports past ones.
type RunHandler struct {
	runner  pipelineRunner
	history runHistory
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewRunHandler constructs the handler. timeout bounds a triggered run independently of the HTTP client.
func NewRunHandler(runner pipelineRunner, history runHistory, timeout time.Duration, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{runner: runner, history: history, timeout: timeout, logger: logger, now: time.Now}
}

// Trigger godoc
// @Summary Run the pipeline
// @Description Runs extract, transform and load synchronously. Defaults to yesterday in UTC-5.
// @Tags Runs
// @Accept json
// @Produce json
// @Param payload body dto.TriggerRunRequest false "Optional target date"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /api/v1/runs [post]
func (h *RunHandler) Trigger(c *gin.Context) {
	var req dto.TriggerRunRequest
	// Chunked bodies report ContentLength -1, so only a known-empty body skips binding.
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run request"))
			return
		}
	}

	runAt := h.now()
	if req.TargetDate != "" {
		target, err := models.ParseDate(req.TargetDate)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "target_date must be YYYY-MM-DD"))
			return
		}
		if service.TargetDate(runAt).Before(target) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "target_date must not be after yesterday"))
			return
		}
		runAt = service.RunTimeFor(target)
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	summary, err := h.runner.RunAt(ctx, runAt)
	if summary == nil {
		if err == nil {
			err = appErrors.ErrInternal
		}
		response.Error(c, err)
		return
	}

	resp := dto.NewRunResponse(summary)
	if err != nil {
		response.ErrorWithData(c, err, resp)
		return
	}
	if !resp.Success {
		msg := fmt.Sprintf("%d of %d tables failed", resp.TablesFailed, len(summary.Tables))
		response.ErrorWithData(c, appErrors.Clone(appErrors.ErrRunFailed, msg), resp)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// History godoc
// @Summary List runs of a target date
// @Tags Runs
// @Produce json
// @Param date path string true "Target date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/v1/runs/{date} [get]
func (h *RunHandler) History(c *gin.Context) {
	date, err := models.ParseDate(c.Param("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}

	runs, err := h.history.History(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RunHistoryResponse{TargetDate: date.String(), Runs: runs}, map[string]interface{}{"count": len(runs)})
}
