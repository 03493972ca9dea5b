package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/config"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/asset"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/failure"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/logging"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/pipeline"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/usecase"
)

func run(cmd *cobra.Command, input string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return errors.New("GEMINI_API_KEY is required (set it in .env)")
	}
	description, _ := cmd.Flags().GetString("description")

	log, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		JSON:    cfg.Log.JSON,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer closeLog()

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Hour)
	defer cancel()

	settings := cfg.Settings()
	settings.Description = description

	pauses := cfg.Pauses()
	if noPause, _ := cmd.Flags().GetBool("no-pause"); noPause {
		pauses = usecase.Pauses{}
	}

	out := cmd.OutOrStdout()
	pcfg := pipeline.Config{
		Input:    absIn,
		OutDir:   cfg.Recap.OutDir,
		Settings: settings,
		APIKey:   apiKey,
		Log:      log,
		Pauses:   pauses,
		OnStage: func(s types.ProcessingStage) {
			fmt.Fprintf(out, "[%3d%%] %-17s %s\n", s.Progress, s.Kind, s.Message)
		},

		FFmpegPath:  cfg.Engine.FFmpeg,
		FFprobePath: cfg.Engine.FFprobe,
		TempDir:     cfg.Engine.TempDir,

		GeminiModel:        cfg.Gemini.Model,
		GeminiBaseURL:      cfg.Gemini.BaseURL,
		GeminiAllowedHosts: cfg.Gemini.AllowedHosts,
		GeminiLanguage:     cfg.Gemini.Language,
		GeminiRPS:          cfg.Gemini.RequestsPerSecond,
		GeminiBackoffUnit:  cfg.Gemini.BackoffUnit,

		StatsDB: cfg.Stats.DB,
	}

	if err := pcfg.Validate(); err != nil {
		return fmt.Errorf("config: %s", userMessage(err))
	}
	if fi, err := os.Stat(absIn); err == nil {
		fmt.Fprintf(out, "input: %s (%s)\n", filepath.Base(absIn), asset.FormatSize(fi.Size()))
	}
	fmt.Fprintf(out, "recap plan: %s\n", pipeline.Describe(settings))

	res, err := pipeline.Run(ctx, pcfg)
	if err != nil {
		log.WithError(err).Debug("run failed")
		return errors.New(userMessage(err))
	}

	fmt.Fprintf(out, "clip:   %s\n", filepath.Join(res.RunDir, res.Manifest.Clip))
	fmt.Fprintf(out, "script: %s\n\n%s\n", filepath.Join(res.RunDir, res.Manifest.ScriptFile), res.Manifest.Script)
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("stats-db"); v != "" {
		cfg.Stats.DB = v
	}
	return cfg, nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("out") {
		cfg.Recap.OutDir, _ = f.GetString("out")
	}
	if f.Changed("duration") {
		cfg.Recap.Duration, _ = f.GetInt("duration")
	}
	if f.Changed("interval") {
		cfg.Recap.Interval, _ = f.GetInt("interval")
	}
	if f.Changed("capture") {
		cfg.Recap.Capture, _ = f.GetInt("capture")
	}
	if f.Changed("language") {
		cfg.Gemini.Language, _ = f.GetString("language")
	}
	if f.Changed("log-file") {
		cfg.Log.File, _ = f.GetString("log-file")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
}

// userMessage is the single line shown for a failed run.
func userMessage(err error) string {
	var fe *failure.Error
	if failure.IsValidation(err) && errors.As(err, &fe) {
		return fe.Message
	}
	if failure.KindOf(err) == failure.KindUnknown {
		return err.Error()
	}
	return failure.Classify(err).Message
}
