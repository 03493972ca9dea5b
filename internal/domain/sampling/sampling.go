package sampling

import (
	"fmt"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
)

// Plan is the derived extraction plan for one set of recap settings.
type Plan struct {
	Filter            string
	EstimatedSegments int
	MaxOutputSeconds  int
	KeepRatio         float64
}

// Build derives the filter expression and display estimates from already
// validated settings.
func Build(s types.RecapSettings) Plan {
	return Plan{
		Filter:            Filter(s.SampleIntervalSeconds, s.CaptureWindowSeconds),
		EstimatedSegments: EstimatedSegmentCount(s.TargetDurationSeconds, s.SampleIntervalSeconds),
		MaxOutputSeconds:  s.TargetDurationSeconds,
		KeepRatio:         KeepRatio(s.SampleIntervalSeconds, s.CaptureWindowSeconds),
	}
}

// Filter keeps every frame whose timestamp falls in the first window
// seconds of each interval, then re-times the kept frames into one
// contiguous stream. The exact text is consumed by existing transcoding
// backends and must not change.
func Filter(interval, window int) string {
	return fmt.Sprintf("select='lt(mod(t,%d),%d)',setpts=N/FRAME_RATE/TB", interval, window)
}

// EstimatedSegmentCount is floor(target/interval). Display only.
func EstimatedSegmentCount(target, interval int) int {
	if interval <= 0 || target <= 0 {
		return 0
	}
	return target / interval
}

// KeepRatio is the fraction of the source timeline the filter keeps.
func KeepRatio(interval, window int) float64 {
	if interval <= 0 || window <= 0 {
		return 0
	}
	if window >= interval {
		return 1
	}
	return float64(window) / float64(interval)
}

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatDuration(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
