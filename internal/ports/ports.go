package ports

import (
	"context"
	"io"
)

// TransformArgs describes one filter pass over a working-storage entry.
type TransformArgs struct {
	Input            string
	Output           string
	Filter           string
	MaxOutputSeconds int
	// KeepRatio is the share of the source timeline the filter keeps; it
	// only sharpens progress estimates.
	KeepRatio float64
}

// Engine is the transcoding engine. It is a single mutable resource:
// callers must not run two transforms on it at once.
type Engine interface {
	Load(ctx context.Context) error
	Loaded() bool
	Dispose() error

	WriteInput(ctx context.Context, name string, r io.Reader) error
	// Transform reports progress as a fraction; values may stray outside
	// [0,1] and callers must clamp them.
	Transform(ctx context.Context, args TransformArgs, onProgress func(float64)) error
	ReadOutput(ctx context.Context, name string, w io.Writer) error
	// DeleteEntry removes a working-storage entry. Missing entries are not an error.
	DeleteEntry(ctx context.Context, name string) error
}

type ScriptWriter interface {
	Generate(ctx context.Context, description, apiKey string) (string, error)
}

type Counter interface {
	IncrementRecapsCreated(ctx context.Context) error
}
