package models

import (
	"time"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ConfidenceForCount grades an estimate strictly by how many independent
// sources contributed. Zero successes is a total failure, not LOW, and must
// be handled before calling this.
func ConfidenceForCount(successes int) Confidence {
	switch {
	case successes >= 3:
		return ConfidenceHigh
	case successes == 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SourceResult is one adapter's view of the chain, produced per cycle and
// never persisted.
type SourceResult struct {
	Source         string
	Height         int64
	AvgBlockTimeMs float64
	Endpoint       string
}

// SourceStatus records how each source family fared during one aggregation.
type SourceStatus struct {
	Source   string  `json:"source"`
	OK       bool    `json:"ok"`
	Height   int64   `json:"height,omitempty"`
	Endpoint string  `json:"endpoint,omitempty"`
	Error    string  `json:"error,omitempty"`
	AvgMs    float64 `json:"avg_block_time_ms,omitempty"`
}

type AggregateEstimate struct {
	Network        Network        `json:"network"`
	CurrentHeight  int64          `json:"current_height"`
	AvgBlockTimeMs float64        `json:"avg_block_time_ms"`
	Confidence     Confidence     `json:"confidence"`
	Sources        []SourceStatus `json:"sources"`
}

// BlockEstimate is the block→time answer.
type BlockEstimate struct {
	Network         Network        `json:"network"`
	CurrentHeight   int64          `json:"current_height"`
	TargetHeight    int64          `json:"target_height"`
	BlocksRemaining int64          `json:"blocks_remaining"`
	AvgBlockTimeMs  float64        `json:"avg_block_time_ms"`
	EstimatedAt     time.Time      `json:"estimated_at"`
	Confidence      Confidence     `json:"confidence"`
	Sources         []SourceStatus `json:"sources"`
}

// HeightEstimate is the time→block answer.
type HeightEstimate struct {
	Network         Network        `json:"network"`
	CurrentHeight   int64          `json:"current_height"`
	EstimatedHeight int64          `json:"estimated_height"`
	BlocksAway      int64          `json:"blocks_away"`
	AvgBlockTimeMs  float64        `json:"avg_block_time_ms"`
	TargetTime      time.Time      `json:"target_time"`
	Confidence      Confidence     `json:"confidence"`
	Sources         []SourceStatus `json:"sources"`
}
