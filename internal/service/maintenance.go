package service

import (
	"context"
	"fmt"
	"time"
)

// PruneAlerts deletes audit records older than the configured retention.
// It runs under an advisory lock so only one replica prunes per tick.
func (s *Service) PruneAlerts(ctx context.Context, bucket time.Time) error {
	if s.alerts == nil || s.auditRetention <= 0 {
		return nil
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip prune because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	cutoff := bucket.Add(-s.auditRetention)
	deleted, err := s.alerts.DeleteAlertsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune alerts: %w", err)
	}
	s.logger.Info().Time("cutoff", cutoff).Int64("deleted", deleted).Msg("alert audit pruned")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
