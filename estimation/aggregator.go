// Package estimation turns redundant, fallible chain sources into a single
// consensus estimate and answers block→time and time→block queries.
package estimation

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/emirpasic/gods/utils"
	"github.com/go-errors/errors"
	"golang.org/x/sync/errgroup"
)

// SourceAdapter is one protocol family's view of the chain.
type SourceAdapter interface {
	Source() string
	CurrentState(ctx context.Context, urls []string) (models.SourceResult, error)
}

const DefaultSourceTimeout = 10 * time.Second

type boundSource struct {
	adapter SourceAdapter
	urls    func(models.NetworkEndpoints) []string
}

// Aggregator fans out to all source adapters concurrently and reduces the
// surviving results to one estimate. Sources are equally trusted: no
// weighting, no outlier rejection beyond the median's own robustness.
type Aggregator struct {
	log           *slog.Logger
	endpoints     map[models.Network]models.NetworkEndpoints
	sources       []boundSource
	sourceTimeout time.Duration
}

func NewAggregator(
	log *slog.Logger,
	endpoints map[models.Network]models.NetworkEndpoints,
	evm SourceAdapter,
	tendermint SourceAdapter,
	rest SourceAdapter,
	sourceTimeout time.Duration,
) *Aggregator {
	if sourceTimeout == 0 {
		sourceTimeout = DefaultSourceTimeout
	}
	return &Aggregator{
		log:       log.With("module", "aggregator"),
		endpoints: endpoints,
		sources: []boundSource{
			{adapter: evm, urls: func(e models.NetworkEndpoints) []string { return e.EVMRPCURLs }},
			{adapter: tendermint, urls: func(e models.NetworkEndpoints) []string { return e.TendermintRPCURLs }},
			{adapter: rest, urls: func(e models.NetworkEndpoints) []string { return e.RESTURLs }},
		},
		sourceTimeout: sourceTimeout,
	}
}

// Aggregate queries every source concurrently, waits for all of them to
// settle, and reduces the successes to a median height and mean block time.
// It fails only when every source failed.
func (a *Aggregator) Aggregate(ctx context.Context, network models.Network) (models.AggregateEstimate, error) {
	endpoints, ok := a.endpoints[network]
	if !ok {
		return models.AggregateEstimate{}, errors.Errorf("unknown network %q", network)
	}

	type settled struct {
		result models.SourceResult
		err    error
	}
	outcomes := make([]settled, len(a.sources))

	// Adapter errors are collected, never returned through the group: one
	// failing source must not cancel the others.
	group, groupCtx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		group.Go(func() error {
			callCtx, cancel := context.WithTimeout(groupCtx, a.sourceTimeout)
			defer cancel()
			result, err := src.adapter.CurrentState(callCtx, src.urls(endpoints))
			outcomes[i] = settled{result: result, err: err}
			return nil
		})
	}
	_ = group.Wait()

	statuses := make([]models.SourceStatus, 0, len(a.sources))
	heights := make([]int64, 0, len(a.sources))
	var avgSum float64
	for i, o := range outcomes {
		source := a.sources[i].adapter.Source()
		if o.err != nil {
			a.log.Warn("Source failed during aggregation", "source", source, "network", network, "error", o.err)
			statuses = append(statuses, models.SourceStatus{Source: source, OK: false, Error: o.err.Error()})
			observeSourceFailure(source)
			continue
		}
		statuses = append(statuses, models.SourceStatus{
			Source:   source,
			OK:       true,
			Height:   o.result.Height,
			Endpoint: o.result.Endpoint,
			AvgMs:    o.result.AvgBlockTimeMs,
		})
		heights = append(heights, o.result.Height)
		avgSum += o.result.AvgBlockTimeMs
		observeSourceSuccess(source)
	}

	if len(heights) == 0 {
		return models.AggregateEstimate{}, &models.AllSourcesFailedError{Network: network, Sources: statuses}
	}

	estimate := models.AggregateEstimate{
		Network:        network,
		CurrentHeight:  medianHeight(heights),
		AvgBlockTimeMs: avgSum / float64(len(heights)),
		Confidence:     models.ConfidenceForCount(len(heights)),
		Sources:        statuses,
	}
	setAggregatedHeight(network, estimate.CurrentHeight)
	return estimate, nil
}

// medianHeight returns the middle value for odd-length input. For an
// even-length input it returns the floor of the mean of the two middle
// values, keeping the result an integer height.
func medianHeight(heights []int64) int64 {
	sorted := slices.Clone(heights)
	slices.SortFunc(sorted, func(a, b int64) int {
		return utils.Int64Comparator(a, b)
	})
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
