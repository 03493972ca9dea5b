package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/failure"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
)

// MaxSize is the largest source video accepted (2 GiB).
const MaxSize int64 = 2 * 1024 * 1024 * 1024

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// SupportedFormats lists accepted extensions, upper-cased, for messages.
func SupportedFormats() []string {
	return []string{"MP4", "AVI", "MOV", "MKV", "WEBM"}
}

// Select validates a local file and turns it into a VideoAsset.
func Select(path string) (types.VideoAsset, error) {
	const op = "asset.Select"

	if strings.TrimSpace(path) == "" {
		return types.VideoAsset{}, failure.Validation(op, "please choose a video file")
	}
	ext := strings.ToLower(filepath.Ext(path))
	mt, ok := mediaTypes[ext]
	if !ok {
		return types.VideoAsset{}, failure.Validation(op, fmt.Sprintf(
			"unsupported file type; supported: %s", strings.Join(SupportedFormats(), ", ")))
	}

	fi, err := os.Stat(path)
	if err != nil {
		return types.VideoAsset{}, failure.Wrap(failure.KindValidation, op, err, "cannot access video file")
	}
	if fi.IsDir() {
		return types.VideoAsset{}, failure.Validation(op, "video path is a directory")
	}
	if fi.Size() > MaxSize {
		return types.VideoAsset{}, failure.Validation(op, "file is too large; maximum size is 2GB")
	}

	return types.VideoAsset{
		ID:        uuid.NewString(),
		Name:      filepath.Base(path),
		Size:      fi.Size(),
		MediaType: mt,
		Path:      path,
	}, nil
}

// FormatSize renders a byte count the way the upload form shows it.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	return s + " " + units[i]
}
