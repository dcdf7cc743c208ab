// Package estimation_mock provides hand-rolled mocks for the estimation
// package interfaces, following the XxxFunc field convention used across the
// test suite.
package estimation_mock

import (
	"context"
	"time"

	"github.com/chainpulse/blockwatch/estimation"
	"github.com/chainpulse/blockwatch/models"
)

type EstimatorMock struct {
	TimeForBlockFunc func(ctx context.Context, network models.Network, targetHeight int64) (models.BlockEstimate, error)
	BlockForTimeFunc func(ctx context.Context, network models.Network, targetTime time.Time, overrideAvgBlockTimeMs float64) (models.HeightEstimate, error)
}

var _ estimation.Estimator = &EstimatorMock{}

func (m *EstimatorMock) TimeForBlock(ctx context.Context, network models.Network, targetHeight int64) (models.BlockEstimate, error) {
	return m.TimeForBlockFunc(ctx, network, targetHeight)
}

func (m *EstimatorMock) BlockForTime(ctx context.Context, network models.Network, targetTime time.Time, overrideAvgBlockTimeMs float64) (models.HeightEstimate, error) {
	return m.BlockForTimeFunc(ctx, network, targetTime, overrideAvgBlockTimeMs)
}

type AggregatingMock struct {
	AggregateFunc func(ctx context.Context, network models.Network) (models.AggregateEstimate, error)
}

var _ estimation.Aggregating = &AggregatingMock{}

func (m *AggregatingMock) Aggregate(ctx context.Context, network models.Network) (models.AggregateEstimate, error) {
	return m.AggregateFunc(ctx, network)
}

type SourceAdapterMock struct {
	SourceName       string
	CurrentStateFunc func(ctx context.Context, urls []string) (models.SourceResult, error)
}

var _ estimation.SourceAdapter = &SourceAdapterMock{}

func (m *SourceAdapterMock) Source() string {
	return m.SourceName
}

func (m *SourceAdapterMock) CurrentState(ctx context.Context, urls []string) (models.SourceResult, error) {
	return m.CurrentStateFunc(ctx, urls)
}
