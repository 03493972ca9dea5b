package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/asset"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/sampling"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/extract"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/logging"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports/adapters/ffmpeg"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports/adapters/gemini"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports/adapters/sqlite"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/usecase"
)

type Config struct {
	Input    string
	OutDir   string
	Settings types.RecapSettings
	APIKey   string

	Log     logrus.FieldLogger
	OnStage func(types.ProcessingStage)
	Pauses  usecase.Pauses

	FFmpegPath  string
	FFprobePath string
	// TempDir holds the engine's working storage. Empty means the OS temp dir.
	TempDir string
	// Engine replaces the ffmpeg adapter when set.
	Engine ports.Engine

	GeminiModel        string
	GeminiBaseURL      string
	GeminiAllowedHosts []string
	GeminiLanguage     string
	// GeminiRPS paces API requests. Zero disables pacing.
	GeminiRPS         float64
	GeminiBackoffUnit time.Duration
	HTTPClient        *http.Client

	// StatsDB is the usage counter database. Empty disables counting.
	StatsDB string
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.Input); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if err := usecase.ValidateSettings(c.Settings); err != nil {
		return err
	}
	if c.GeminiRPS < 0 {
		return fmt.Errorf("gemini requests per second must be >= 0")
	}
	return gemini.ValidateBaseURL(
		c.GeminiBaseURL,
		c.GeminiAllowedHosts,
	)
}

type Result struct {
	RunDir   string
	Manifest types.Manifest
	Stage    types.ProcessingStage
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	runID := uuid.NewString()
	log := logging.OrDiscard(cfg.Log).WithField("run_id", runID)

	src, err := asset.Select(cfg.Input)
	if err != nil {
		return Result{}, err
	}
	log.WithFields(logrus.Fields{
		"asset": src.Name,
		"size":  asset.FormatSize(src.Size),
		"type":  src.MediaType,
	}).Info("input selected")

	engine := cfg.Engine
	if engine == nil {
		engine = ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.TempDir, log)
	}
	defer func() {
		if err := engine.Dispose(); err != nil {
			log.WithError(err).Warn("failed to dispose video engine")
		}
	}()

	writer := gemini.New(cfg.GeminiModel, cfg.GeminiBaseURL, geminiOptions(cfg, log)...)

	var counter ports.Counter
	if cfg.StatsDB != "" {
		store, err := sqlite.Open(cfg.StatsDB)
		if err != nil {
			log.WithError(err).Warn("stats database unavailable, recap will not be counted")
		} else {
			defer store.Close()
			counter = store
		}
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	now := time.Now().UTC()
	// created by the extractor once a clip exists
	runOutDir := buildRunOutDir(outDir, cfg.Input, now)
	log.WithField("dir", runOutDir).Info("output run dir")

	uc := usecase.New(usecase.Deps{
		Extractor: extract.New(engine, runOutDir, log),
		Writer:    writer,
		Counter:   counter,
		Log:       log,
		Pauses:    cfg.Pauses,
	})
	defer uc.Wait()

	res, err := uc.Run(ctx, usecase.Input{
		Asset:    src,
		Settings: cfg.Settings,
		APIKey:   cfg.APIKey,
		OnStage:  cfg.OnStage,
	})
	if err != nil {
		// only succeeds when the run left nothing behind
		_ = os.Remove(runOutDir)
		return Result{Stage: res.Stage}, err
	}

	m, err := writeOutputs(runOutDir, runID, now, cfg, res)
	if err != nil {
		return Result{RunDir: runOutDir, Stage: res.Stage}, err
	}
	log.WithField("clip", m.Clip).Info("recap written")
	return Result{RunDir: runOutDir, Manifest: m, Stage: res.Stage}, nil
}

func geminiOptions(cfg Config, log logrus.FieldLogger) []gemini.Option {
	opts := []gemini.Option{
		gemini.WithLogger(log),
		gemini.WithLanguage(cfg.GeminiLanguage),
	}
	if cfg.GeminiRPS > 0 {
		opts = append(opts, gemini.WithLimiter(rate.NewLimiter(rate.Limit(cfg.GeminiRPS), 1)))
	} else {
		opts = append(opts, gemini.WithLimiter(nil))
	}
	if cfg.GeminiBackoffUnit > 0 {
		opts = append(opts, gemini.WithBackoffUnit(cfg.GeminiBackoffUnit))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, gemini.WithHTTPClient(cfg.HTTPClient))
	}
	return opts
}

func writeOutputs(runOutDir, runID string, now time.Time, cfg Config, res usecase.Result) (types.Manifest, error) {
	scriptPath := filepath.Join(runOutDir, "script.txt")
	if err := os.WriteFile(scriptPath, []byte(res.Artifact.Script+"\n"), 0o644); err != nil {
		return types.Manifest{}, err
	}

	settings := cfg.Settings
	settings.APIKey = ""
	m := types.Manifest{
		RunID:             runID,
		Input:             cfg.Input,
		CreatedAt:         now,
		Settings:          settings,
		Filter:            res.Plan.Filter,
		EstimatedSegments: res.Plan.EstimatedSegments,
		Clip:              filepath.ToSlash(filepath.Base(res.Artifact.Clip.Path)),
		ClipBytes:         res.Artifact.Clip.Size,
		Script:            res.Artifact.Script,
		ScriptFile:        "script.txt",
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return types.Manifest{}, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runOutDir, "manifest.json"), b, 0o644); err != nil {
		return types.Manifest{}, err
	}
	return m, nil
}

// Describe is the one-line plan summary printed before a run.
func Describe(s types.RecapSettings) string {
	p := sampling.Build(s)
	return fmt.Sprintf("target %s, %ds every %ds (~%d segments)",
		sampling.FormatDuration(s.TargetDurationSeconds),
		s.CaptureWindowSeconds, s.SampleIntervalSeconds, p.EstimatedSegments)
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

var (
	_ ports.Engine       = (*ffmpeg.Adapter)(nil)
	_ ports.ScriptWriter = (*gemini.Adapter)(nil)
	_ ports.Counter      = (*sqlite.Store)(nil)
)
