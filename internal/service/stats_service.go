package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// StatsCache is an optional read-through cache for per-creator stats. Set must not store
// an entry if Invalidate ran after the generation passed to it was read.
type StatsCache interface {
	Get(ctx context.Context, userID int64) (domain.TicketStats, bool, error)
	Generation(ctx context.Context, userID int64) (int64, error)
	Set(ctx context.Context, userID, gen int64, stats domain.TicketStats) (bool, error)
	Invalidate(ctx context.Context, userID int64) error
}

// StatsService derives created/resolved/pending counts per ticket creator.
type StatsService struct {
	store   repository.Store
	cache   StatsCache
	policy  *auth.Policy
	logger  *zap.Logger
	metrics *observability.Metrics
}

// StatsDependencies bundles collaborators for the stats service. Cache may be nil.
type StatsDependencies struct {
	Store   repository.Store
	Cache   StatsCache
	Policy  *auth.Policy
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewStatsService constructs the service.
func NewStatsService(deps StatsDependencies) *StatsService {
	return &StatsService{
		store:   deps.Store,
		cache:   deps.Cache,
		policy:  deps.Policy,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}
}

// GetStats returns the stats of userID. Non-admins may only read their own.
func (s *StatsService) GetStats(ctx context.Context, actor domain.Principal, userID int64) (domain.TicketStats, error) {
	if err := authorize(s.policy, actor, auth.OpStats); err != nil {
		return domain.TicketStats{}, err
	}
	if userID <= 0 {
		userID = actor.UserID
	}
	if userID != actor.UserID && actor.Role != domain.RoleAdmin {
		return domain.TicketStats{}, apperrors.NewForbidden("you may only view your own ticket stats")
	}

	if s.cache != nil {
		stats, ok, err := s.cache.Get(ctx, userID)
		switch {
		case err != nil:
			s.metrics.RecordCache("error")
			s.logger.Warn("stats cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		case ok:
			s.metrics.RecordCache("hit")
			return stats, nil
		default:
			s.metrics.RecordCache("miss")
		}
	}

	cacheable := false
	var gen int64
	if s.cache != nil {
		var err error
		if gen, err = s.cache.Generation(ctx, userID); err != nil {
			s.logger.Warn("stats cache generation read failed", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			cacheable = true
		}
	}

	stats, err := s.store.Tickets().StatsForCreator(ctx, userID)
	if err != nil {
		return domain.TicketStats{}, translate(s.logger, err, "stats", map[string]any{"user_id": userID})
	}

	if cacheable {
		written, err := s.cache.Set(ctx, userID, gen, stats)
		switch {
		case err != nil:
			s.logger.Warn("stats cache write failed", zap.Int64("user_id", userID), zap.Error(err))
		case !written:
			s.logger.Debug("stats changed while loading; not cached", zap.Int64("user_id", userID))
		}
	}
	return stats, nil
}

// Invalidate drops the cached stats of a creator after a committed mutation.
func (s *StatsService) Invalidate(ctx context.Context, userID int64) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
