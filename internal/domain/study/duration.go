package study

import "time"

// NoiseFloorSeconds is the shortest session that has any effect.
const NoiseFloorSeconds int64 = 5

// Measurement is the validated duration of a session close attempt.
type Measurement struct {
	// Seconds elapsed between start and end, truncated toward zero.
	Seconds int64

	// BelowThreshold is set when Seconds is under the noise floor,
	// including negative values caused by clock skew.
	BelowThreshold bool
}

// MeasureDuration computes the elapsed whole seconds and applies the noise floor.
func MeasureDuration(startedAt, endedAt time.Time) Measurement {
	seconds := int64(endedAt.Sub(startedAt) / time.Second)
	return Measurement{
		Seconds:        seconds,
		BelowThreshold: seconds < NoiseFloorSeconds,
	}
}
