// Package scoring derives the time-decayed ranking metrics of a content item.
package scoring

import (
	"math"
	"time"
)

const secondsPerDay = 86400

// ComputeScores returns the recommended and trending scores for a net vote count
// aged ageSeconds since its scoring anchor.
//
//	recommended = raw * 2^(3*(2 - days))
//	trending    = raw * 2^(8*(1 - days))
//
// The function is total: a NaN age counts as zero and results outside the float32
// range are clamped to it.
func ComputeScores(rawScore int, ageSeconds float64) (float32, float32) {
	if math.IsNaN(ageSeconds) {
		ageSeconds = 0
	}
	days := ageSeconds / secondsPerDay
	raw := float64(rawScore)

	recommended := raw * math.Exp2(3*(2-days))
	trending := raw * math.Exp2(8*(1-days))
	return clamp32(recommended), clamp32(trending)
}

// Scores computes both metrics for a content item anchored at anchor, evaluated at now
func Scores(rawScore int, anchor, now time.Time) (float32, float32) {
	return ComputeScores(rawScore, now.Sub(anchor).Seconds())
}

func clamp32(v float64) float32 {
	switch {
	case math.IsNaN(v):
		// 0 * Inf for a zero score with a negative infinite age
		return 0
	case v > math.MaxFloat32:
		return math.MaxFloat32
	case v < -math.MaxFloat32:
		return -math.MaxFloat32
	}
	return float32(v)
}
