//go:build integration

package itest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const modulePath = "github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann"

// findRepoRoot walks up from the working directory to this module's go.mod.
func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		b, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil && bytes.Contains(b, []byte("module "+modulePath)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not locate the recapcut go.mod")
		}
		dir = parent
	}
}

func ffprobeBin() string {
	if p := strings.TrimSpace(os.Getenv("RECAPCUT_FFPROBE")); p != "" {
		return p
	}
	return "ffprobe"
}

// probeClipSeconds reads the container duration of a produced clip.
func probeClipSeconds(path string) (float64, error) {
	out, err := exec.Command(ffprobeBin(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	).CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w\n%s", filepath.Base(path), err, out)
	}
	raw := strings.TrimSpace(string(out))
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("clip duration %q: %w", raw, err)
	}
	return sec, nil
}
