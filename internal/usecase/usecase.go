package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/failure"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/sampling"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/extract"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/logging"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
)

const (
	MaxTargetDurationSeconds = 3 * 60 * 60
	MaxSampleIntervalSeconds = 60
)

const (
	msgLoadingEngine   = "Loading the video engine..."
	msgWritingFile     = "Writing the file to working storage..."
	msgCuttingFmt      = "Cutting segments from the video... %d%%"
	msgGeneratingStart = "Generating a script with Gemini AI..."
	msgScriptReady     = "The script was generated."
	msgPreparingAudio  = "Preparing audio narration..."
	msgCompleted       = "The recap was created successfully!"
)

// Pauses are the short holds after the script and audio stages so each
// stays observable.
type Pauses struct {
	AfterScript time.Duration
	AfterAudio  time.Duration
}

func DefaultPauses() Pauses {
	return Pauses{AfterScript: 500 * time.Millisecond, AfterAudio: time.Second}
}

type Deps struct {
	Extractor *extract.Extractor
	Writer    ports.ScriptWriter
	// Counter is optional. Its failures are logged and never fail a run.
	Counter ports.Counter
	Log     logrus.FieldLogger
	Pauses  Pauses
	Sleep   func(ctx context.Context, d time.Duration) error
}

type Usecase struct {
	d       Deps
	pending *sync.WaitGroup
}

func New(d Deps) Usecase {
	d.Log = logging.OrDiscard(d.Log)
	if d.Sleep == nil {
		d.Sleep = sleepContext
	}
	return Usecase{d: d, pending: &sync.WaitGroup{}}
}

type Input struct {
	Asset    types.VideoAsset
	Settings types.RecapSettings
	// APIKey falls back to Settings.APIKey when empty.
	APIKey  string
	OnStage func(types.ProcessingStage)
}

type Result struct {
	Artifact types.RecapArtifact
	Plan     sampling.Plan
	Stage    types.ProcessingStage
}

// ValidateSettings checks the timing parameters of a run.
func ValidateSettings(s types.RecapSettings) error {
	const op = "usecase.ValidateSettings"

	switch {
	case s.TargetDurationSeconds < 1 || s.TargetDurationSeconds > MaxTargetDurationSeconds:
		return failure.Validation(op, fmt.Sprintf("target duration must be between 1 and %d seconds", MaxTargetDurationSeconds))
	case s.SampleIntervalSeconds < 1 || s.SampleIntervalSeconds > MaxSampleIntervalSeconds:
		return failure.Validation(op, fmt.Sprintf("sample interval must be between 1 and %d seconds", MaxSampleIntervalSeconds))
	case s.CaptureWindowSeconds < 1:
		return failure.Validation(op, "capture window must be at least 1 second")
	case s.CaptureWindowSeconds > s.SampleIntervalSeconds:
		return failure.Validation(op, "capture window must not exceed the sample interval")
	}
	return nil
}

func validate(in Input, apiKey string) error {
	const op = "usecase.Validate"

	if strings.TrimSpace(in.Asset.Path) == "" {
		return failure.Validation(op, "please select a video file")
	}
	if strings.TrimSpace(apiKey) == "" {
		return failure.Validation(op, "please enter an API key")
	}
	if strings.TrimSpace(in.Settings.Description) == "" {
		return failure.Validation(op, "please describe the video")
	}
	return ValidateSettings(in.Settings)
}

// Run produces a recap. Validation failures return before any stage is
// emitted. Every other failure ends in the error stage and is returned.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	apiKey := in.APIKey
	if apiKey == "" {
		apiKey = in.Settings.APIKey
	}
	if err := validate(in, apiKey); err != nil {
		return Result{Stage: types.ProcessingStage{Kind: types.StageIdle}}, err
	}

	tr := newTracker(in.OnStage)
	plan := sampling.Build(in.Settings)
	log := u.d.Log.WithField("asset", in.Asset.Name)

	clip, script, err := u.produce(ctx, in, apiKey, plan, tr, log)
	if err != nil {
		if clip.Path != "" {
			if relErr := clip.Release(); relErr != nil {
				log.WithError(relErr).Warn("failed to release partial clip")
			}
		}
		cls := failure.Classify(err)
		log.WithError(err).WithField("stage", tr.current().Kind).Error("recap failed")
		tr.emit(types.StageError, 0, cls.Message)
		return Result{Plan: plan, Stage: tr.current()}, err
	}

	tr.emit(types.StageCompleted, 100, msgCompleted)
	u.countRecap(ctx, log)

	return Result{
		Artifact: types.RecapArtifact{Clip: clip, Script: script},
		Plan:     plan,
		Stage:    tr.current(),
	}, nil
}

func (u Usecase) produce(ctx context.Context, in Input, apiKey string, plan sampling.Plan, tr *tracker, log logrus.FieldLogger) (types.ClipHandle, string, error) {
	tr.emit(types.StageLoadingEngine, 0, msgLoadingEngine)
	if err := u.d.Extractor.Load(ctx); err != nil {
		return types.ClipHandle{}, "", err
	}

	tr.emit(types.StageCuttingVideo, 0, msgWritingFile)
	log.WithFields(logrus.Fields{
		"filter":   plan.Filter,
		"segments": plan.EstimatedSegments,
	}).Info("cutting video")
	ex := u.d.Extractor.Start(ctx, extract.Request{Asset: in.Asset, Plan: plan})
	for p := range ex.Progress() {
		tr.emit(types.StageCuttingVideo, p, fmt.Sprintf(msgCuttingFmt, p))
	}
	clip, err := ex.Wait()
	if err != nil {
		return types.ClipHandle{}, "", err
	}

	tr.emit(types.StageGeneratingScript, 0, msgGeneratingStart)
	script, err := u.d.Writer.Generate(ctx, in.Settings.Description, apiKey)
	if err != nil {
		return clip, "", err
	}
	tr.emit(types.StageGeneratingScript, 100, msgScriptReady)
	if err := u.d.Sleep(ctx, u.d.Pauses.AfterScript); err != nil {
		return clip, "", err
	}

	tr.emit(types.StageGeneratingAudio, 50, msgPreparingAudio)
	if err := u.d.Sleep(ctx, u.d.Pauses.AfterAudio); err != nil {
		return clip, "", err
	}
	return clip, script, nil
}

// countRecap bumps the usage counter in the background. Wait drains it.
func (u Usecase) countRecap(ctx context.Context, log logrus.FieldLogger) {
	if u.d.Counter == nil {
		return
	}
	cctx := context.WithoutCancel(ctx)
	u.pending.Add(1)
	go func() {
		defer u.pending.Done()
		if err := u.d.Counter.IncrementRecapsCreated(cctx); err != nil {
			log.WithError(err).Warn("failed to increment recap counter")
		}
	}()
}

// Wait blocks until background side effects of finished runs are done.
func (u Usecase) Wait() {
	u.pending.Wait()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
