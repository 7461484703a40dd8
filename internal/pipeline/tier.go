package pipeline

import (
	"time"

	"hostmon/internal/metrics"
)

// Tier names a refresh cadence class of metric groups.
// Params: none.
// Returns: enum-like tier identifier.
type Tier string

const (
	TierFast   Tier = "fast"
	TierMedium Tier = "medium"
	TierSlow   Tier = "slow"
)

// TierSchedule holds refresh intervals of the non-fast tiers.
// Params: medium and slow refresh intervals.
// Returns: tier schedule.
type TierSchedule struct {
	Medium time.Duration
	Slow   time.Duration
}

// tierOf maps a metric group to its refresh tier.
// Params: group metric group.
// Returns: tier identifier.
func tierOf(group metrics.Group) Tier {
	switch group {
	case metrics.GroupDiskIO:
		return TierMedium
	case metrics.GroupDiskUsage:
		return TierSlow
	default:
		return TierFast
	}
}

// Due reports whether a tier refreshed at last must refresh at now.
// Params: now current pass time; last previous refresh time; interval tier interval.
// Returns: true iff now-last >= interval.
func Due(now, last time.Time, interval time.Duration) bool {
	return now.Sub(last) >= interval
}

// tierState tracks last refresh time per tier; owned by one Coordinator.
type tierState struct {
	schedule TierSchedule
	last     map[Tier]time.Time
	seeded   bool
}

// newTierState creates an unseeded tier tracker.
// Params: schedule tier intervals.
// Returns: tracker instance.
func newTierState(schedule TierSchedule) *tierState {
	return &tierState{
		schedule: schedule,
		last:     make(map[Tier]time.Time, 3),
	}
}

// due evaluates every tier for one pass; the first call seeds all tiers with now.
// Params: now pass time.
// Returns: set of tiers due on this pass.
func (s *tierState) due(now time.Time) map[Tier]bool {
	if !s.seeded {
		for _, tier := range []Tier{TierFast, TierMedium, TierSlow} {
			s.last[tier] = now
		}
		s.seeded = true
	}

	return map[Tier]bool{
		TierFast:   true,
		TierMedium: Due(now, s.last[TierMedium], s.schedule.Medium),
		TierSlow:   Due(now, s.last[TierSlow], s.schedule.Slow),
	}
}

// mark records a refresh decision.
// Params: tier refreshed tier; now pass time.
// Returns: none.
func (s *tierState) mark(tier Tier, now time.Time) {
	s.last[tier] = now
}
