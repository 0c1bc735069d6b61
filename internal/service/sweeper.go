package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/errs"
	"github.com/openshelf/lending-service/pkg/kafka"
)

// RunOverdueSweep drives the recurring background check for severely
// overdue loans. It runs one pass immediately and then on every tick
// until ctx is cancelled.
func (s *Service) RunOverdueSweep(ctx context.Context) error {
	ticker := time.NewTicker(s.policy.SweepInterval)
	defer ticker.Stop()

	for {
		passCtx, cancel := context.WithTimeout(ctx, s.policy.SweepTimeout)
		if err := s.CheckOverdueBooks(passCtx); err != nil {
			s.log.Error("overdue sweep", zap.Error(err))
		}
		cancel()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CheckOverdueBooks applies the extra flat penalty to every open record
// more than thirty days past due. Each record is its own short
// transaction; the scan itself holds no locks.
func (s *Service) CheckOverdueBooks(ctx context.Context) error {
	cutoff := s.now().AddDate(0, 0, -sweepOverdueDays)
	records, err := s.repo.ListSweepCandidates(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "list sweep candidates")
	}

	for _, rec := range records {
		user, err := s.repo.ApplySweepPenalty(ctx, rec.ID, sweepPenaltyPoints, s.now())
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				// closed or already penalized since the scan
				continue
			}
			s.log.Error("sweep penalty",
				zap.Int("record", rec.ID), zap.String("user", rec.UserID), zap.Error(err))
			continue
		}
		s.notifier.Notify(kafka.EventNotification{ //nolint:errcheck
			Kind:        kafka.EventOverduePenalty,
			UserID:      user.ID,
			ISBN:        rec.ISBN,
			Points:      sweepPenaltyPoints,
			CreditScore: user.CreditScore,
			Message:     fmt.Sprintf("loan overdue more than %d days", sweepOverdueDays),
			At:          s.now(),
		})
	}
	return nil
}
