package estimation

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/chainpulse/blockwatch/models"
)

// Aggregating is what the service needs from the consensus layer.
type Aggregating interface {
	Aggregate(ctx context.Context, network models.Network) (models.AggregateEstimate, error)
}

// Estimator answers block→time and time→block queries against a fresh
// aggregate per call.
type Estimator interface {
	TimeForBlock(ctx context.Context, network models.Network, targetHeight int64) (models.BlockEstimate, error)
	BlockForTime(ctx context.Context, network models.Network, targetTime time.Time, overrideAvgBlockTimeMs float64) (models.HeightEstimate, error)
}

type Service struct {
	log        *slog.Logger
	aggregator Aggregating
	now        func() time.Time
}

var _ Estimator = &Service{}

func NewService(log *slog.Logger, aggregator Aggregating) *Service {
	return &Service{
		log:        log.With("module", "estimation"),
		aggregator: aggregator,
		now:        time.Now,
	}
}

// TimeForBlock estimates when targetHeight will be produced. A target at or
// behind the current height is reported as *models.AlreadyReachedError so
// callers can treat it as the expected terminal condition rather than a
// failure.
func (s *Service) TimeForBlock(ctx context.Context, network models.Network, targetHeight int64) (models.BlockEstimate, error) {
	agg, err := s.aggregator.Aggregate(ctx, network)
	if err != nil {
		return models.BlockEstimate{}, err
	}

	blocksRemaining := targetHeight - agg.CurrentHeight
	if blocksRemaining <= 0 {
		return models.BlockEstimate{}, &models.AlreadyReachedError{
			CurrentHeight: agg.CurrentHeight,
			TargetHeight:  targetHeight,
		}
	}

	eta := time.Duration(float64(blocksRemaining) * agg.AvgBlockTimeMs * float64(time.Millisecond))
	return models.BlockEstimate{
		Network:         network,
		CurrentHeight:   agg.CurrentHeight,
		TargetHeight:    targetHeight,
		BlocksRemaining: blocksRemaining,
		AvgBlockTimeMs:  agg.AvgBlockTimeMs,
		EstimatedAt:     s.now().Add(eta),
		Confidence:      agg.Confidence,
		Sources:         agg.Sources,
	}, nil
}

// BlockForTime estimates which height will exist at targetTime. When
// overrideAvgBlockTimeMs is > 0 it replaces the aggregated block time for
// this computation only; it never feeds back into the aggregator.
func (s *Service) BlockForTime(
	ctx context.Context,
	network models.Network,
	targetTime time.Time,
	overrideAvgBlockTimeMs float64,
) (models.HeightEstimate, error) {
	now := s.now()
	if !targetTime.After(now) {
		return models.HeightEstimate{}, &models.TargetInPastError{TargetTime: targetTime, Now: now}
	}

	agg, err := s.aggregator.Aggregate(ctx, network)
	if err != nil {
		return models.HeightEstimate{}, err
	}

	avgMs := agg.AvgBlockTimeMs
	if overrideAvgBlockTimeMs > 0 {
		avgMs = overrideAvgBlockTimeMs
	}

	remainingMs := float64(targetTime.Sub(now)) / float64(time.Millisecond)
	blocksAway := int64(math.Floor(remainingMs / avgMs))
	return models.HeightEstimate{
		Network:         network,
		CurrentHeight:   agg.CurrentHeight,
		EstimatedHeight: agg.CurrentHeight + blocksAway,
		BlocksAway:      blocksAway,
		AvgBlockTimeMs:  avgMs,
		TargetTime:      targetTime,
		Confidence:      agg.Confidence,
		Sources:         agg.Sources,
	}, nil
}
