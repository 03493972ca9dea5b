// Package extract drives the transcoding engine through one sampling pass
// and turns its fractional progress into a percent stream.
package extract

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/failure"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/sampling"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/logging"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
)

const clipMediaType = "video/mp4"

type Request struct {
	Asset types.VideoAsset
	Plan  sampling.Plan
}

// Extractor owns the shared engine. Loads happen at most once and
// extractions run one at a time.
type Extractor struct {
	engine  ports.Engine
	clipDir string
	log     logrus.FieldLogger

	loadMu sync.Mutex
	runMu  sync.Mutex

	newID func() string
}

func New(engine ports.Engine, clipDir string, log logrus.FieldLogger) *Extractor {
	return &Extractor{
		engine:  engine,
		clipDir: clipDir,
		log:     logging.OrDiscard(log),
		newID:   uuid.NewString,
	}
}

// Load initializes the engine unless it is already loaded. A failed load
// leaves the engine unloaded so a later call can retry.
func (x *Extractor) Load(ctx context.Context) error {
	const op = "extract.Load"

	x.loadMu.Lock()
	defer x.loadMu.Unlock()
	if x.engine.Loaded() {
		return nil
	}
	if err := x.engine.Load(ctx); err != nil {
		if failure.KindOf(err) == failure.KindUnknown {
			return failure.EngineLoad(op, err)
		}
		return err
	}
	return nil
}

// Extraction is one running transform.
type Extraction struct {
	progress chan int
	done     chan struct{}
	last     int

	clip types.ClipHandle
	err  error
}

// Progress yields integer percents in [0,100]. Only the newest value is
// buffered; the channel closes when the transform ends.
func (e *Extraction) Progress() <-chan int {
	return e.progress
}

// Wait blocks until the extraction finishes.
func (e *Extraction) Wait() (types.ClipHandle, error) {
	<-e.done
	return e.clip, e.err
}

func (e *Extraction) report(frac float64) {
	p := percent(frac)
	if p <= e.last {
		return
	}
	e.last = p
	select {
	case <-e.progress:
	default:
	}
	select {
	case e.progress <- p:
	default:
	}
}

// Start launches the extraction in the background.
func (x *Extractor) Start(ctx context.Context, req Request) *Extraction {
	e := &Extraction{
		progress: make(chan int, 1),
		done:     make(chan struct{}),
		last:     -1,
	}
	go func() {
		defer close(e.done)
		defer close(e.progress)
		e.clip, e.err = x.run(ctx, req, e.report)
	}()
	return e
}

// Extract runs an extraction to completion, calling onProgress from the
// caller's goroutine.
func (x *Extractor) Extract(ctx context.Context, req Request, onProgress func(int)) (types.ClipHandle, error) {
	e := x.Start(ctx, req)
	for p := range e.Progress() {
		if onProgress != nil {
			onProgress(p)
		}
	}
	return e.Wait()
}

func (x *Extractor) run(ctx context.Context, req Request, report func(float64)) (types.ClipHandle, error) {
	const op = "extract.Run"

	x.runMu.Lock()
	defer x.runMu.Unlock()

	if !x.engine.Loaded() {
		return types.ClipHandle{}, failure.New(failure.KindEngineLoad, op, "video engine is not loaded")
	}

	id := x.newID()
	inName := "input-" + id + filepath.Ext(req.Asset.Name)
	outName := "output-" + id + ".mp4"
	log := x.log.WithFields(logrus.Fields{"entry": id, "asset": req.Asset.Name})

	defer x.cleanup(ctx, log, inName, outName)

	src, err := req.Asset.Open()
	if err != nil {
		return types.ClipHandle{}, failure.Transcode(op, errors.Wrap(err, "open asset"), "could not read the selected video")
	}
	err = x.engine.WriteInput(ctx, inName, src)
	src.Close()
	if err != nil {
		return types.ClipHandle{}, asTranscode(op, err)
	}

	report(0)
	err = x.engine.Transform(ctx, ports.TransformArgs{
		Input:            inName,
		Output:           outName,
		Filter:           req.Plan.Filter,
		MaxOutputSeconds: req.Plan.MaxOutputSeconds,
		KeepRatio:        req.Plan.KeepRatio,
	}, report)
	if err != nil {
		return types.ClipHandle{}, asTranscode(op, err)
	}
	report(1)

	clip, err := x.copyOut(ctx, outName, id)
	if err != nil {
		return types.ClipHandle{}, asTranscode(op, err)
	}
	log.WithField("clip", clip.Path).Debug("extraction finished")
	return clip, nil
}

func (x *Extractor) copyOut(ctx context.Context, outName, id string) (types.ClipHandle, error) {
	if err := os.MkdirAll(x.clipDir, 0o755); err != nil {
		return types.ClipHandle{}, errors.Wrap(err, "create clip directory")
	}
	path := filepath.Join(x.clipDir, "recap-"+id+".mp4")
	f, err := os.Create(path)
	if err != nil {
		return types.ClipHandle{}, errors.Wrap(err, "create clip file")
	}
	cw := &countingWriter{w: f}
	readErr := x.engine.ReadOutput(ctx, outName, cw)
	closeErr := f.Close()
	if readErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if readErr != nil {
			return types.ClipHandle{}, readErr
		}
		return types.ClipHandle{}, errors.Wrap(closeErr, "close clip file")
	}
	return types.ClipHandle{Path: path, Size: cw.n, MediaType: clipMediaType}, nil
}

// cleanup removes both working-storage entries, even after cancellation.
func (x *Extractor) cleanup(ctx context.Context, log logrus.FieldLogger, names ...string) {
	cctx := context.WithoutCancel(ctx)
	for _, name := range names {
		if err := x.engine.DeleteEntry(cctx, name); err != nil {
			log.WithError(err).WithField("name", name).Warn("failed to delete working-storage entry")
		}
	}
}

func asTranscode(op string, err error) error {
	if failure.KindOf(err) != failure.KindUnknown {
		return err
	}
	return failure.Transcode(op, err, "video processing failed")
}

func percent(frac float64) int {
	if math.IsNaN(frac) || frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return int(math.Round(frac * 100))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
