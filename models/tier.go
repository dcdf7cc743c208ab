package models

import "time"

// Tier names a fixed offset before the estimated target time at which a
// progress notification is due.
type Tier string

const (
	TierOneDay         Tier = "1d"
	TierSixHours       Tier = "6h"
	TierOneHour        Tier = "1h"
	TierFifteenMinutes Tier = "15m"
	TierFiveMinutes    Tier = "5m"
)

// Tiers is the fixed tier set, ordered from the largest offset to the
// smallest. The terminal "reached" event is not a tier: it is derived from
// the watch's reached-latch.
var Tiers = []Tier{TierOneDay, TierSixHours, TierOneHour, TierFifteenMinutes, TierFiveMinutes}

var tierOffsets = map[Tier]time.Duration{
	TierOneDay:         24 * time.Hour,
	TierSixHours:       6 * time.Hour,
	TierOneHour:        time.Hour,
	TierFifteenMinutes: 15 * time.Minute,
	TierFiveMinutes:    5 * time.Minute,
}

// Offset returns how long before the estimated target time this tier fires.
func (t Tier) Offset() time.Duration {
	return tierOffsets[t]
}

func (t Tier) Valid() bool {
	_, ok := tierOffsets[t]
	return ok
}

func (t Tier) String() string {
	return string(t)
}
