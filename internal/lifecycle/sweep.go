package lifecycle

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"letters/api/internal/recommendation"
	"letters/api/internal/schedule"
)

const sweepLockName = "sweep"

// SweepReport summarises one pass of the scheduler.
type SweepReport struct {
	Expired          int  `json:"expired"`
	Reminded         int  `json:"reminded"`
	DeliveryFailures int  `json:"deliveryFailures"`
	Skipped          int  `json:"skipped"`
	Failed           int  `json:"failed"`
	LockHeld         bool `json:"lockHeld"`
}

// Sweep fires due reminders, then expires requests whose window has closed.
// Only one sweep runs at a time per locker; a concurrent call returns a
// report with LockHeld set.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Sweep")
	defer span.End()

	var report SweepReport
	unlock, ok, err := s.locker.TryLock(ctx, sweepLockName, s.cfg.SweepLockTTL)
	if err != nil {
		recordSpanError(span, err)
		return report, err
	}
	if !ok {
		report.LockHeld = true
		return report, nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release sweep lock", zap.Error(err))
		}
	}()

	now := s.clock().UTC()

	due, err := s.store.ListDueReminders(ctx, now, s.cfg.SweepBatch)
	if err != nil {
		recordSpanError(span, err)
		return report, err
	}
	for _, req := range due {
		_, err := s.fireReminder(ctx, req, now)
		var deliveryErr *DeliveryError
		switch {
		case err == nil:
			report.Reminded++
		case errors.As(err, &deliveryErr):
			report.Reminded++
			report.DeliveryFailures++
		default:
			s.tally(&report, req.ID, err)
		}
	}

	closing, err := s.store.ListClosing(ctx, now.Add(schedule.ClosingLead), s.cfg.SweepBatch)
	if err != nil {
		recordSpanError(span, err)
		return report, err
	}
	for _, req := range closing {
		if _, err := s.expire(ctx, req, now); err != nil {
			s.tally(&report, req.ID, err)
			continue
		}
		report.Expired++
	}

	span.SetAttributes(
		attribute.Int("sweep.expired", report.Expired),
		attribute.Int("sweep.reminded", report.Reminded),
		attribute.Int("sweep.failed", report.Failed),
	)
	if report.Expired+report.Reminded+report.Failed > 0 {
		s.logger.Info("sweep finished",
			zap.Int("expired", report.Expired),
			zap.Int("reminded", report.Reminded),
			zap.Int("delivery_failures", report.DeliveryFailures),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// tally counts a per-request error. Lost races and not-yet-due rows are
// skipped; anything else is a failure that the next sweep will retry.
func (s *Service) tally(report *SweepReport, id string, err error) {
	if errors.Is(err, recommendation.ErrInvalidTransition) ||
		errors.Is(err, recommendation.ErrConflict) ||
		errors.Is(err, ErrNotDue) {
		report.Skipped++
		return
	}
	report.Failed++
	s.logger.Error("sweep request failed", zap.String("request_id", id), zap.Error(err))
}
