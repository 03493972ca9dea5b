package ffmpeg

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/failure"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports"
)

func TestBuildTransformArgs(t *testing.T) {
	got := buildTransformArgs("/w/in.mp4", "/w/out.mp4", "select='lt(mod(t,8),1)',setpts=N/FRAME_RATE/TB", 30)
	want := []string{
		"-hide_banner", "-nostdin",
		"-i", "/w/in.mp4",
		"-vf", "select='lt(mod(t,8),1)',setpts=N/FRAME_RATE/TB",
		"-an",
		"-t", "30",
		"-y",
		"-progress", "pipe:1",
		"-nostats",
		"/w/out.mp4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestExpectedOutputSeconds(t *testing.T) {
	tests := []struct {
		name   string
		source float64
		ratio  float64
		max    int
		want   float64
	}{
		{name: "capped by max", source: 300, ratio: 0.125, max: 30, want: 30},
		{name: "short source", source: 80, ratio: 0.125, max: 30, want: 10},
		{name: "unknown source", source: 0, ratio: 0.125, max: 30, want: 30},
		{name: "no ratio", source: 80, ratio: 0, max: 30, want: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expectedOutputSeconds(tt.source, tt.ratio, tt.max); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		line   string
		want   float64
		wantOK bool
	}{
		{line: "out_time_us=15000000", want: 0.5, wantOK: true},
		{line: "out_time_ms=3000000", want: 0.1, wantOK: true},
		{line: "progress=end", want: 1, wantOK: true},
		{line: "progress=continue"},
		{line: "out_time_us=N/A"},
		{line: "frame=12"},
		{line: "garbage"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := progressFraction(tt.line, 30)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("fraction = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkingStorageRoundTrip(t *testing.T) {
	a := New("", "", "", nil)
	a.dir = t.TempDir()
	ctx := context.Background()

	if err := a.WriteInput(ctx, "in.mp4", strings.NewReader("video-bytes")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	var buf bytes.Buffer
	if err := a.ReadOutput(ctx, "in.mp4", &buf); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if buf.String() != "video-bytes" {
		t.Fatalf("unexpected content %q", buf.String())
	}
	if err := a.DeleteEntry(ctx, "in.mp4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.DeleteEntry(ctx, "in.mp4"); err != nil {
		t.Fatalf("deleting a missing entry must succeed: %v", err)
	}
	if err := a.ReadOutput(ctx, "in.mp4", &buf); failure.KindOf(err) != failure.KindTranscode {
		t.Fatalf("expected transcode failure for missing output, got %v", err)
	}
}

func TestEntryPathRejectsTraversal(t *testing.T) {
	a := New("", "", "", nil)
	a.dir = t.TempDir()
	for _, name := range []string{"", ".", "..", "../x.mp4", "a/b.mp4"} {
		if _, err := a.entryPath(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestStorageRequiresLoad(t *testing.T) {
	a := New("", "", "", nil)
	if a.Loaded() {
		t.Fatalf("fresh adapter must not be loaded")
	}
	if err := a.WriteInput(context.Background(), "in.mp4", strings.NewReader("x")); err == nil {
		t.Fatalf("expected error before load")
	}
}

func TestLoad_MissingBinary(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "no-such-ffmpeg"), "", t.TempDir(), nil)
	err := a.Load(context.Background())
	if got := failure.KindOf(err); got != failure.KindEngineLoad {
		t.Fatalf("kind = %s, want engine_load (err=%v)", got, err)
	}
	if a.Loaded() {
		t.Fatalf("failed load must leave the adapter unloaded")
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestTransform_WithFakeBinaries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	bin := t.TempDir()
	ffmpegBin := writeScript(t, bin, "ffmpeg", `
if [ "$2" = "-version" ]; then echo "ffmpeg version test"; exit 0; fi
for last; do :; done
printf 'out_time_us=3000000\nprogress=continue\nout_time_us=15000000\nprogress=continue\nprogress=end\n'
echo clip > "$last"
`)
	ffprobeBin := writeScript(t, bin, "ffprobe", "echo 300.000000\n")

	a := New(ffmpegBin, ffprobeBin, t.TempDir(), nil)
	ctx := context.Background()
	if err := a.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	defer a.Dispose()
	dir := a.dir

	if err := a.WriteInput(ctx, "in.mp4", strings.NewReader("src")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	var seen []float64
	err := a.Transform(ctx, ports.TransformArgs{
		Input:            "in.mp4",
		Output:           "out.mp4",
		Filter:           "select='lt(mod(t,8),1)',setpts=N/FRAME_RATE/TB",
		MaxOutputSeconds: 30,
		KeepRatio:        0.125,
	}, func(f float64) { seen = append(seen, f) })
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	want := []float64{0.1, 0.5, 1}
	if len(seen) != len(want) {
		t.Fatalf("progress = %v, want %v", seen, want)
	}
	for i := range want {
		if math.Abs(seen[i]-want[i]) > 1e-9 {
			t.Fatalf("progress = %v, want %v", seen, want)
		}
	}

	var out bytes.Buffer
	if err := a.ReadOutput(ctx, "out.mp4", &out); err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(out.String()) != "clip" {
		t.Fatalf("unexpected output %q", out.String())
	}

	if err := a.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected working storage to be removed, stat err=%v", err)
	}
}

func TestTransform_FailureCarriesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	bin := t.TempDir()
	ffmpegBin := writeScript(t, bin, "ffmpeg", `
if [ "$2" = "-version" ]; then exit 0; fi
echo "Invalid data found when processing input" >&2
exit 1
`)
	ffprobeBin := writeScript(t, bin, "ffprobe", "exit 1\n")

	a := New(ffmpegBin, ffprobeBin, t.TempDir(), nil)
	ctx := context.Background()
	if err := a.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	defer a.Dispose()
	if err := a.WriteInput(ctx, "in.mp4", strings.NewReader("not a video")); err != nil {
		t.Fatalf("write input: %v", err)
	}

	err := a.Transform(ctx, ports.TransformArgs{Input: "in.mp4", Output: "out.mp4", Filter: "null", MaxOutputSeconds: 30}, nil)
	if got := failure.KindOf(err); got != failure.KindTranscode {
		t.Fatalf("kind = %s, want transcode (err=%v)", got, err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

func TestProbeDuration(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	tests := []struct {
		name    string
		script  string
		want    time.Duration
		wantErr string
	}{
		{name: "seconds", script: "echo 12.500000\n", want: 12500 * time.Millisecond},
		{name: "ffprobe exits non-zero", script: "echo 'moov atom not found' >&2\nexit 1\n", wantErr: "moov atom not found"},
		{name: "garbage output", script: "echo N/A\n", wantErr: `parse duration "N/A"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := writeScript(t, t.TempDir(), "ffprobe", tt.script)
			got, err := New("ffmpeg", probe, "", nil).ProbeDuration(context.Background(), "clip.mp4")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				if errors.Cause(err) == err {
					t.Fatalf("expected a wrapped cause, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("probe: %v", err)
			}
			if got != tt.want {
				t.Fatalf("duration = %v, want %v", got, tt.want)
			}
		})
	}
}
