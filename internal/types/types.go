package types

import (
	"io"
	"os"
	"time"
)

// VideoAsset is a selected source video. It is immutable once selected.
type VideoAsset struct {
	ID        string
	Name      string
	Size      int64
	MediaType string
	Path      string
}

// Open returns a reader over the asset bytes.
func (a VideoAsset) Open() (io.ReadCloser, error) {
	return os.Open(a.Path)
}

type RecapSettings struct {
	TargetDurationSeconds int    `json:"target_duration_seconds" yaml:"duration"`
	SampleIntervalSeconds int    `json:"sample_interval_seconds" yaml:"interval"`
	CaptureWindowSeconds  int    `json:"capture_window_seconds" yaml:"capture"`
	Description           string `json:"description" yaml:"description"`
	APIKey                string `json:"-" yaml:"-"`
}

// DefaultRecapSettings mirrors the values a fresh settings form starts with.
func DefaultRecapSettings() RecapSettings {
	return RecapSettings{
		TargetDurationSeconds: 30,
		SampleIntervalSeconds: 8,
		CaptureWindowSeconds:  1,
	}
}

type StageKind string

const (
	StageIdle             StageKind = "idle"
	StageLoadingEngine    StageKind = "loading_engine"
	StageCuttingVideo     StageKind = "cutting_video"
	StageGeneratingScript StageKind = "generating_script"
	StageGeneratingAudio  StageKind = "generating_audio"
	StageCompleted        StageKind = "completed"
	StageError            StageKind = "error"
)

// Terminal reports whether no further transition can follow k within a run.
func (k StageKind) Terminal() bool {
	return k == StageCompleted || k == StageError
}

type ProcessingStage struct {
	Kind     StageKind `json:"stage"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
}

// ClipHandle references the trimmed, narration-less clip on disk.
type ClipHandle struct {
	Path      string
	Size      int64
	MediaType string
}

// Release removes the clip file. Releasing an empty handle is a no-op.
func (h ClipHandle) Release() error {
	if h.Path == "" {
		return nil
	}
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type RecapArtifact struct {
	Clip   ClipHandle
	Script string
}

type Manifest struct {
	RunID             string        `json:"run_id"`
	Input             string        `json:"input"`
	CreatedAt         time.Time     `json:"created_at"`
	Settings          RecapSettings `json:"settings"`
	Filter            string        `json:"filter"`
	EstimatedSegments int           `json:"estimated_segments"`
	Clip              string        `json:"clip"`
	ClipBytes         int64         `json:"clip_bytes"`
	Script            string        `json:"script"`
	ScriptFile        string        `json:"script_file"`
}

// Stats is the persisted usage summary shown next to the recap form.
type Stats struct {
	RecapsCreated  int64 `json:"recaps_created"`
	TotalRatingSum int64 `json:"total_rating_sum"`
	RatingCount    int64 `json:"rating_count"`
}

// AverageRating returns the mean rating, or 0 when nobody has rated yet.
func (s Stats) AverageRating() float64 {
	if s.RatingCount <= 0 {
		return 0
	}
	return float64(s.TotalRatingSum) / float64(s.RatingCount)
}
