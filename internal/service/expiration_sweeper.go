package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

const sweepBatchSize = 500

// errAlreadyClosed aborts an expiry whose row was closed after it was selected.
var errAlreadyClosed = errors.New("teacher session already closed")

// InvalidatedToken builds the token written over a forcibly ended session.
func InvalidatedToken(at time.Time, username string) string {
	return fmt.Sprintf("%s%d_%s", domain.InvalidatedTokenPrefix, at.UnixMilli(), username)
}

// ExpirationSweeper closes sessions that stayed open past the idle timeout.
type ExpirationSweeper struct {
	sessions repository.TeacherSessionRepository
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewExpirationSweeper(sessions repository.TeacherSessionRepository, timeout, interval time.Duration, logger *slog.Logger) *ExpirationSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirationSweeper{
		sessions: sessions,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// SweepOnce expires every stale session and returns how many it closed.
func (s *ExpirationSweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := observability.StartSpan(ctx, "teacher_session.sweep")
	defer span.End()

	now := s.now().UTC()
	cutoff := now.Add(-s.timeout)
	expired := 0
	for {
		stale, err := s.sessions.FindStale(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return expired, err
		}
		closed := 0
		for _, doc := range stale {
			_, err := s.sessions.Rewrite(ctx, doc.ID, func(d *domain.TeacherSession) (repository.Mutation, error) {
				if !d.Active || d.LogoutAt != nil || d.LogoutTime != nil {
					return repository.Mutation{}, errAlreadyClosed
				}
				t := now
				d.Active = false
				d.LogoutAt = &t
				d.LogoutTime = &t
				d.SessionToken = InvalidatedToken(now, d.Username)
				return repository.Mutation{Columns: []string{"active", "logout_at", "logout_time", "session_token"}}, nil
			})
			if errors.Is(err, errAlreadyClosed) {
				continue
			}
			if err != nil {
				s.logger.WarnContext(ctx, "teacher session expiry failed", "session_id", doc.ID, "error", err)
				continue
			}
			closed++
			s.logger.InfoContext(ctx, "teacher session expired",
				"session_id", doc.ID,
				"username", doc.Username,
				"login_at", doc.LoginAt,
			)
		}
		expired += closed
		if len(stale) < sweepBatchSize || closed == 0 {
			break
		}
	}
	observability.RecordSessionsExpired(ctx, expired)
	return expired, nil
}

// Run sweeps on every tick until ctx is done.
func (s *ExpirationSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "teacher session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "teacher session sweep complete", "expired", n)
			}
		}
	}
}
