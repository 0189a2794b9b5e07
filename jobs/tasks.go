package jobs

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fiscalpos/fiscalpos/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueReports holds document rendering work.
	QueueReports = "reports"

	// TaskFiscalRangeWatch checks remaining capacity and expiry of active CAI ranges.
	TaskFiscalRangeWatch = "fiscal:range-watch"
	// TaskShiftReport renders the closing report of a shift.
	TaskShiftReport = "shift:report"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RangeWatchPayload overrides the configured thresholds when non-zero.
type RangeWatchPayload struct {
	LowCapacity int64 `json:"low_capacity,omitempty"`
	ExpiryDays  int   `json:"expiry_days,omitempty"`
}

// ShiftReportPayload identifies the closed shift to render.
type ShiftReportPayload struct {
	ShiftID int64 `json:"shift_id"`
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewRangeWatchTask constructs the range watch task.
func NewRangeWatchTask(payload RangeWatchPayload) (*asynq.Task, error) {
	return newTask(TaskFiscalRangeWatch, payload, asynq.Queue(QueueDefault))
}

// NewShiftReportTask constructs a shift report task. The task ID makes
// repeated enqueues for the same shift collapse.
func NewShiftReportTask(shiftID int64) (*asynq.Task, error) {
	return newTask(TaskShiftReport, ShiftReportPayload{ShiftID: shiftID},
		asynq.Queue(QueueReports), asynq.MaxRetry(5), asynq.TaskID(shiftReportTaskID(shiftID)))
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{OlderThan: olderThan}, asynq.Queue(QueueDefault))
}

func newTask(typeName string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typeName, body, opts...), nil
}

func shiftReportTaskID(shiftID int64) string {
	return "shift-report-" + strconv.FormatInt(shiftID, 10)
}
