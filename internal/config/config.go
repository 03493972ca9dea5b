// Package config loads recapcut.yaml and applies environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/usecase"
)

const DefaultFile = "recapcut.yaml"

type Config struct {
	Recap  RecapConfig  `yaml:"recap"`
	Engine EngineConfig `yaml:"engine"`
	Gemini GeminiConfig `yaml:"gemini"`
	Stats  StatsConfig  `yaml:"stats"`
	Log    LogConfig    `yaml:"log"`
}

type RecapConfig struct {
	Duration    int           `yaml:"duration"`
	Interval    int           `yaml:"interval"`
	Capture     int           `yaml:"capture"`
	OutDir      string        `yaml:"out_dir"`
	ScriptPause time.Duration `yaml:"script_pause"`
	AudioPause  time.Duration `yaml:"audio_pause"`
}

type EngineConfig struct {
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	// TempDir is where working storage is created; empty means the OS temp dir.
	TempDir string `yaml:"temp_dir"`
}

type GeminiConfig struct {
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts"`
	Language     string   `yaml:"language"`
	// RequestsPerSecond paces calls to the API. Zero disables pacing.
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BackoffUnit       time.Duration `yaml:"backoff_unit"`
}

type StatsConfig struct {
	// DB is the SQLite file. Empty disables the usage counter.
	DB string `yaml:"db"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

func Default() Config {
	s := types.DefaultRecapSettings()
	p := usecase.DefaultPauses()
	return Config{
		Recap: RecapConfig{
			Duration:    s.TargetDurationSeconds,
			Interval:    s.SampleIntervalSeconds,
			Capture:     s.CaptureWindowSeconds,
			OutDir:      "out",
			ScriptPause: p.AfterScript,
			AudioPause:  p.AfterAudio,
		},
		Engine: EngineConfig{FFmpeg: "ffmpeg", FFprobe: "ffprobe"},
		Gemini: GeminiConfig{
			Model:             "gemini-1.5-flash-latest",
			BaseURL:           "https://generativelanguage.googleapis.com",
			Language:          "Hebrew",
			RequestsPerSecond: 1,
			BackoffUnit:       time.Second,
		},
		Stats: StatsConfig{DB: filepath.Join(".cache", "recapcut", "stats.db")},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and then applies the environment.
// A missing file is only an error when path is not DefaultFile.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	case os.IsNotExist(err) && path == DefaultFile:
	default:
		return Config{}, errors.Wrapf(err, "read %s", path)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Gemini.Model = getEnv("GEMINI_MODEL", c.Gemini.Model)
	c.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", c.Gemini.BaseURL)
	c.Gemini.AllowedHosts = getEnvAsStringSlice("GEMINI_ALLOWED_HOSTS", c.Gemini.AllowedHosts)
	c.Gemini.Language = getEnv("GEMINI_LANGUAGE", c.Gemini.Language)
	c.Gemini.RequestsPerSecond = getEnvAsFloat("GEMINI_REQUESTS_PER_SECOND", c.Gemini.RequestsPerSecond)

	c.Engine.FFmpeg = getEnv("RECAPCUT_FFMPEG", c.Engine.FFmpeg)
	c.Engine.FFprobe = getEnv("RECAPCUT_FFPROBE", c.Engine.FFprobe)
	c.Engine.TempDir = getEnv("RECAPCUT_TEMP_DIR", c.Engine.TempDir)

	c.Stats.DB = getEnv("RECAPCUT_STATS_DB", c.Stats.DB)

	c.Log.Level = getEnv("RECAPCUT_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("RECAPCUT_LOG_FILE", c.Log.File)
	c.Log.JSON = getEnvAsBool("RECAPCUT_LOG_JSON", c.Log.JSON)

	c.Recap.OutDir = getEnv("RECAPCUT_OUT_DIR", c.Recap.OutDir)
	c.Recap.Duration = getEnvAsInt("RECAPCUT_DURATION", c.Recap.Duration)
	c.Recap.Interval = getEnvAsInt("RECAPCUT_INTERVAL", c.Recap.Interval)
	c.Recap.Capture = getEnvAsInt("RECAPCUT_CAPTURE", c.Recap.Capture)
}

func (c Config) Validate() error {
	if c.Recap.ScriptPause < 0 || c.Recap.AudioPause < 0 {
		return errors.New("recap pauses must not be negative")
	}
	if c.Gemini.RequestsPerSecond < 0 {
		return errors.New("gemini.requests_per_second must not be negative")
	}
	if c.Gemini.BackoffUnit < 0 {
		return errors.New("gemini.backoff_unit must not be negative")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

func (c Config) Pauses() usecase.Pauses {
	return usecase.Pauses{AfterScript: c.Recap.ScriptPause, AfterAudio: c.Recap.AudioPause}
}

// Settings returns the configured timing defaults for a run.
func (c Config) Settings() types.RecapSettings {
	return types.RecapSettings{
		TargetDurationSeconds: c.Recap.Duration,
		SampleIntervalSeconds: c.Recap.Interval,
		CaptureWindowSeconds:  c.Recap.Capture,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
		logrus.WithFields(logrus.Fields{
			"key":          key,
			"value":        value,
			"defaultValue": defaultValue,
		}).Warn("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
		logrus.WithFields(logrus.Fields{
			"key":          key,
			"value":        value,
			"defaultValue": defaultValue,
		}).Warn("Invalid number, using default")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
		logrus.WithFields(logrus.Fields{
			"key":          key,
			"value":        value,
			"defaultValue": defaultValue,
		}).Warn("Invalid boolean, using default")
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
