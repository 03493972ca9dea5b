package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/failure"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/logging"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports"
)

const stderrTail = 2048

// Adapter drives the ffmpeg binary. Working storage is a private temp
// directory that exists between Load and Dispose.
type Adapter struct {
	ffmpeg   string
	ffprobe  string
	tempRoot string
	log      logrus.FieldLogger

	mu  sync.Mutex
	dir string
}

func New(ffmpegPath, ffprobePath, tempRoot string, log logrus.FieldLogger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{
		ffmpeg:   ffmpegPath,
		ffprobe:  ffprobePath,
		tempRoot: tempRoot,
		log:      logging.OrDiscard(log),
	}
}

func (a *Adapter) Load(ctx context.Context) error {
	const op = "ffmpeg.Load"

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dir != "" {
		return nil
	}

	b, err := exec.CommandContext(ctx, a.ffmpeg, "-hide_banner", "-version").CombinedOutput()
	if err != nil {
		return failure.EngineLoad(op, errors.Wrapf(err, "%s -version\n%s", a.ffmpeg, tail(b)))
	}
	dir, err := os.MkdirTemp(a.tempRoot, "recapcut-engine-*")
	if err != nil {
		return failure.EngineLoad(op, errors.Wrap(err, "create working storage"))
	}
	a.dir = dir
	a.log.WithField("dir", dir).Debug("ffmpeg engine loaded")
	return nil
}

func (a *Adapter) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dir != ""
}

// Dispose removes the working storage. The adapter may be loaded again.
func (a *Adapter) Dispose() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dir == "" {
		return nil
	}
	err := os.RemoveAll(a.dir)
	a.dir = ""
	return err
}

func (a *Adapter) WriteInput(ctx context.Context, name string, r io.Reader) error {
	const op = "ffmpeg.WriteInput"

	p, err := a.entryPath(name)
	if err != nil {
		return failure.Transcode(op, err, "invalid working-storage entry")
	}
	f, err := os.Create(p)
	if err != nil {
		return failure.Transcode(op, errors.Wrap(err, "create entry"), "could not write the input file")
	}
	_, copyErr := io.Copy(f, readerWithContext(ctx, r))
	closeErr := f.Close()
	if copyErr != nil {
		if ctx.Err() != nil {
			return failure.Wrap(failure.KindCanceled, op, ctx.Err(), "canceled while writing input")
		}
		return failure.Transcode(op, errors.Wrap(copyErr, "copy input"), "could not write the input file")
	}
	if closeErr != nil {
		return failure.Transcode(op, errors.Wrap(closeErr, "close entry"), "could not write the input file")
	}
	return nil
}

func (a *Adapter) Transform(ctx context.Context, args ports.TransformArgs, onProgress func(float64)) error {
	const op = "ffmpeg.Transform"

	in, err := a.entryPath(args.Input)
	if err != nil {
		return failure.Transcode(op, err, "invalid input entry")
	}
	out, err := a.entryPath(args.Output)
	if err != nil {
		return failure.Transcode(op, err, "invalid output entry")
	}

	expected := float64(args.MaxOutputSeconds)
	if src, err := a.ProbeDuration(ctx, in); err != nil {
		a.log.WithError(err).Debug("probe failed, estimating progress from max output")
	} else {
		expected = expectedOutputSeconds(src.Seconds(), args.KeepRatio, args.MaxOutputSeconds)
	}

	cmd := exec.CommandContext(ctx, a.ffmpeg, buildTransformArgs(in, out, args.Filter, args.MaxOutputSeconds)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return failure.Transcode(op, errors.Wrap(err, "stdout pipe"), "ffmpeg transform failed")
	}
	if err := cmd.Start(); err != nil {
		return failure.Transcode(op, errors.Wrapf(err, "start %s", a.ffmpeg), "ffmpeg transform failed")
	}

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		if frac, ok := progressFraction(sc.Text(), expected); ok && onProgress != nil {
			onProgress(frac)
		}
	}
	// drain whatever the scanner left so Wait does not block on a full pipe
	_, _ = io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return failure.Wrap(failure.KindCanceled, op, ctx.Err(), "transform canceled")
		}
		return failure.Transcode(op, errors.Wrapf(err, "ffmpeg transform\n%s", tail(stderr.Bytes())), "ffmpeg transform failed")
	}
	return nil
}

func (a *Adapter) ReadOutput(ctx context.Context, name string, w io.Writer) error {
	const op = "ffmpeg.ReadOutput"

	p, err := a.entryPath(name)
	if err != nil {
		return failure.Transcode(op, err, "invalid output entry")
	}
	f, err := os.Open(p)
	if err != nil {
		return failure.Transcode(op, errors.Wrap(err, "open output"), "ffmpeg produced no output")
	}
	defer f.Close()
	if _, err := io.Copy(w, readerWithContext(ctx, f)); err != nil {
		if ctx.Err() != nil {
			return failure.Wrap(failure.KindCanceled, op, ctx.Err(), "canceled while reading output")
		}
		return failure.Transcode(op, errors.Wrap(err, "copy output"), "could not read the produced clip")
	}
	return nil
}

func (a *Adapter) DeleteEntry(_ context.Context, name string) error {
	p, err := a.entryPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete entry %s", name)
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, errors.Wrapf(err, "ffprobe duration\n%s", tail(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse duration %q", s)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func (a *Adapter) entryPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", errors.Errorf("invalid entry name %q", name)
	}
	a.mu.Lock()
	dir := a.dir
	a.mu.Unlock()
	if dir == "" {
		return "", errors.New("engine is not loaded")
	}
	return filepath.Join(dir, name), nil
}

func buildTransformArgs(in, out, filter string, maxSeconds int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", in,
		"-vf", filter,
		"-an",
		"-t", strconv.Itoa(maxSeconds),
		"-y",
		"-progress", "pipe:1",
		"-nostats",
		out,
	}
}

// expectedOutputSeconds estimates the clip length the transform will write.
func expectedOutputSeconds(sourceSeconds, keepRatio float64, maxSeconds int) float64 {
	max := float64(maxSeconds)
	if sourceSeconds <= 0 || keepRatio <= 0 {
		return max
	}
	est := sourceSeconds * keepRatio
	if max > 0 && est > max {
		return max
	}
	return est
}

// progressFraction reads one -progress line. out_time_ms carries
// microseconds, like out_time_us.
func progressFraction(line string, expectedSeconds float64) (float64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}
	switch key {
	case "progress":
		if value == "end" {
			return 1, true
		}
	case "out_time_us", "out_time_ms":
		if expectedSeconds <= 0 {
			return 0, false
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(us) / 1e6 / expectedSeconds, true
	}
	return 0, false
}

func tail(b []byte) string {
	if len(b) > stderrTail {
		b = b[len(b)-stderrTail:]
	}
	return strings.TrimSpace(string(b))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
