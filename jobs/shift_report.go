package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/fiscalpos/fiscalpos/internal/jobs"
	"github.com/fiscalpos/fiscalpos/internal/shared"
	"github.com/fiscalpos/fiscalpos/internal/shifts"
	"github.com/fiscalpos/fiscalpos/report"
)

// ShiftSource loads a closed shift with its ledger totals.
type ShiftSource interface {
	ClosingReport(ctx context.Context, shiftID int64) (shifts.Shift, shifts.ClosingPreview, error)
}

// ShiftRenderer produces the PDF of a shift closing.
type ShiftRenderer interface {
	Render(ctx context.Context, data report.ShiftClosing) ([]byte, error)
}

// ShiftReportJobConfig wires the report job.
type ShiftReportJobConfig struct {
	Source     ShiftSource
	Renderer   ShiftRenderer
	StorageDir string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// ShiftReportJob renders closing reports and stores them on disk.
type ShiftReportJob struct {
	source     ShiftSource
	renderer   ShiftRenderer
	storageDir string
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
}

// NewShiftReportJob constructs the job handler.
func NewShiftReportJob(cfg ShiftReportJobConfig) *ShiftReportJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return &ShiftReportJob{
		source:     cfg.Source,
		renderer:   cfg.Renderer,
		storageDir: cfg.StorageDir,
		logger:     logger.With(slog.String("job", TaskShiftReport)),
		metrics:    metrics,
	}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *ShiftReportJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.source == nil || j.renderer == nil {
		return fmt.Errorf("shift report job not configured")
	}
	var payload ShiftReportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.ShiftID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskShiftReport)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	shift, preview, err := j.source.ClosingReport(ctx, payload.ShiftID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrInvalidState) {
			j.logger.Warn("shift report skipped", slog.Int64("shift_id", payload.ShiftID), slog.Any("error", err))
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		return err
	}
	pdf, err := j.renderer.Render(ctx, report.ShiftClosing{Shift: shift, Preview: preview})
	if err != nil {
		return err
	}
	path, err := j.save(shift.ID, pdf)
	if err != nil {
		return err
	}
	j.logger.Info("shift report ready", slog.Int64("shift_id", shift.ID), slog.String("file", path))
	return nil
}

func (j *ShiftReportJob) save(shiftID int64, pdf []byte) (string, error) {
	dir := j.storageDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "shift-reports")
	}
	dir = filepath.Join(dir, "shifts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("shift-%d-%s.pdf", shiftID, uuid.NewString())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
