package models

import (
	"fmt"
	"time"
)

// AlreadyReachedError reports that the requested target height is at or
// behind the current chain height. It is an expected domain condition, not
// an operational failure, and callers branch on it with errors.As.
type AlreadyReachedError struct {
	CurrentHeight int64
	TargetHeight  int64
}

func (e *AlreadyReachedError) Error() string {
	return fmt.Sprintf("target block %d already reached, chain is at %d", e.TargetHeight, e.CurrentHeight)
}

// TargetInPastError reports a time→block request whose target timestamp is
// not in the future.
type TargetInPastError struct {
	TargetTime time.Time
	Now        time.Time
}

func (e *TargetInPastError) Error() string {
	return fmt.Sprintf("target time %s is not in the future (now %s)",
		e.TargetTime.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

// AllSourcesFailedError reports that every source family was exhausted
// during one aggregation.
type AllSourcesFailedError struct {
	Network Network
	Sources []SourceStatus
}

func (e *AllSourcesFailedError) Error() string {
	msg := fmt.Sprintf("all sources failed for network %s:", e.Network)
	for _, s := range e.Sources {
		msg += fmt.Sprintf(" [%s: %s]", s.Source, s.Error)
	}
	return msg
}
