package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fiscalpos/fiscalpos/internal/fiscal"
	jobmetrics "github.com/fiscalpos/fiscalpos/internal/jobs"
)

// Alert reasons reported by the range watch.
const (
	ReasonLowCapacity = "low_capacity"
	ReasonExpiring    = "expiring"
	ReasonExpired     = "expired"
	ReasonExhausted   = "exhausted"
)

// CapacitySource reports the remaining life of active fiscal ranges.
type CapacitySource interface {
	Capacity(ctx context.Context) ([]fiscal.CapacityReport, error)
}

// RangeAlert is one warning raised for a range.
type RangeAlert struct {
	RangeID int64
	Reason  string
	Pending int64
	Days    int
}

// RangeWatchJob warns before the active CAI ranges run out of numbers or
// reach their authorization deadline.
type RangeWatchJob struct {
	Source      CapacitySource
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	LowCapacity int64
	ExpiryDays  int
}

// NewRangeWatchJob constructs the range watch handler.
func NewRangeWatchJob(source CapacitySource, lowCapacity int64, expiryDays int, logger *slog.Logger, metrics *jobmetrics.Metrics) *RangeWatchJob {
	return &RangeWatchJob{Source: source, Logger: logger, Metrics: metrics, LowCapacity: lowCapacity, ExpiryDays: expiryDays}
}

// Handle executes the watch.
func (j *RangeWatchJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("range watch: handler not configured")
	}
	var payload RangeWatchPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	low, days := j.LowCapacity, j.ExpiryDays
	if payload.LowCapacity > 0 {
		low = payload.LowCapacity
	}
	if payload.ExpiryDays > 0 {
		days = payload.ExpiryDays
	}

	tracker := j.metrics().Track(TaskFiscalRangeWatch)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger()
	reports, err := j.Source.Capacity(ctx)
	if err != nil {
		logger.Error("load range capacity", slog.Any("error", err))
		return err
	}
	alerts := Evaluate(reports, low, days)
	for _, a := range alerts {
		logger.Warn("fiscal range needs attention",
			slog.Int64("range_id", a.RangeID),
			slog.String("reason", a.Reason),
			slog.Int64("pending", a.Pending),
			slog.Int("days_to_expiry", a.Days),
		)
		j.metrics().AddRangeAlerts(a.Reason, a.RangeID, 1)
	}
	if len(reports) == 0 {
		logger.Error("no active fiscal range; invoicing is blocked")
	}
	logger.Info("range watch completed",
		slog.Int("ranges", len(reports)),
		slog.Int("alerts", len(alerts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Evaluate applies the thresholds to capacity reports. A range raises at
// most one capacity alert and one expiry alert.
func Evaluate(reports []fiscal.CapacityReport, lowCapacity int64, expiryDays int) []RangeAlert {
	var alerts []RangeAlert
	for _, r := range reports {
		switch {
		case r.Pending <= 0:
			alerts = append(alerts, RangeAlert{RangeID: r.RangeID, Reason: ReasonExhausted, Pending: r.Pending, Days: r.DaysToExpiry})
		case lowCapacity > 0 && r.Pending <= lowCapacity:
			alerts = append(alerts, RangeAlert{RangeID: r.RangeID, Reason: ReasonLowCapacity, Pending: r.Pending, Days: r.DaysToExpiry})
		}
		switch {
		case r.Expired:
			alerts = append(alerts, RangeAlert{RangeID: r.RangeID, Reason: ReasonExpired, Pending: r.Pending, Days: r.DaysToExpiry})
		case expiryDays > 0 && r.DaysToExpiry <= expiryDays:
			alerts = append(alerts, RangeAlert{RangeID: r.RangeID, Reason: ReasonExpiring, Pending: r.Pending, Days: r.DaysToExpiry})
		}
	}
	return alerts
}

func (j *RangeWatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFiscalRangeWatch))
	}
	return slog.Default().With(slog.String("job", TaskFiscalRangeWatch))
}

func (j *RangeWatchJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
