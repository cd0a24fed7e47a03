package domain

import "time"

// Summary partitions a timer's elapsed wall-clock time. Active+Paused+Inactive
// never exceeds Elapsed; the remainder is time no bucket could vouch for.
type Summary struct {
	Elapsed         time.Duration `json:"elapsed"`
	Active          time.Duration `json:"active"`
	Paused          time.Duration `json:"paused"`
	Inactive        time.Duration `json:"inactive"`
	PauseCount      int           `json:"pause_count"`
	ActivityPercent float64       `json:"activity_percent"`
}

// newSummary scales the three buckets down proportionally when drift makes
// them overshoot elapsed.
func newSummary(elapsed, active, paused, inactive time.Duration, pauseCount int) Summary {
	sum := active + paused + inactive
	if sum > elapsed && sum > 0 {
		ratio := float64(elapsed) / float64(sum)
		active = time.Duration(float64(active) * ratio)
		paused = time.Duration(float64(paused) * ratio)
		inactive = time.Duration(float64(inactive) * ratio)
		if excess := active + paused + inactive - elapsed; excess > 0 {
			switch {
			case active >= paused && active >= inactive:
				active -= excess
			case paused >= inactive:
				paused -= excess
			default:
				inactive -= excess
			}
		}
	}
	s := Summary{Elapsed: elapsed, Active: active, Paused: paused, Inactive: inactive, PauseCount: pauseCount}
	s.ActivityPercent = percent(active, elapsed)
	return s
}

// Add folds two summaries, e.g. a finished task into session totals.
func (s Summary) Add(other Summary) Summary {
	return newSummary(
		s.Elapsed+other.Elapsed,
		s.Active+other.Active,
		s.Paused+other.Paused,
		s.Inactive+other.Inactive,
		s.PauseCount+other.PauseCount,
	)
}

// Unaccounted is elapsed time not attributed to any bucket.
func (s Summary) Unaccounted() time.Duration {
	return s.Elapsed - s.Active - s.Paused - s.Inactive
}

func percent(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
