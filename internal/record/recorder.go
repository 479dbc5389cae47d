package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectorlabs/lector-core/internal/capture"
	"github.com/lectorlabs/lector-core/internal/config"
)

var (
	ErrNoActiveStream    = errors.New("no active stream")
	ErrUnsupportedFormat = errors.New("no supported recording format")
)

// Artifact is a finalized session recording on disk.
type Artifact struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Container string    `json:"container"`
	Codec     string    `json:"codec"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder accumulates frame chunks from a borrowed capture source and
// finalizes them into a single downloadable artifact. At most one
// recording runs at a time; at most one artifact is tracked at a time.
type Recorder struct {
	cfg     config.RecordConfig
	muxer   Muxer
	logger  *slog.Logger
	onError func(error)

	mu        sync.Mutex
	recording bool
	format    config.RecordFormat
	chunks    [][]byte
	sub       <-chan capture.Frame
	source    capture.Source
	collected chan struct{}
	artifact  *Artifact
}

func NewRecorder(cfg config.RecordConfig, muxer Muxer, log *slog.Logger, onError func(error)) *Recorder {
	if onError == nil {
		onError = func(error) {}
	}
	return &Recorder{
		cfg:     cfg,
		muxer:   muxer,
		logger:  log.With(slog.String("component", "recorder")),
		onError: onError,
	}
}

// Start begins recording the given source. Starting while a recording
// is already in progress is a no-op.
func (r *Recorder) Start(source capture.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return nil
	}
	if source == nil {
		return ErrNoActiveStream
	}

	format, ok := r.selectFormat()
	if !ok {
		return ErrUnsupportedFormat
	}

	sub := source.Subscribe()
	r.recording = true
	r.format = format
	r.chunks = nil
	r.sub = sub
	r.source = source
	r.collected = make(chan struct{})

	go r.collect(sub, r.collected)

	r.logger.Info("recording started",
		slog.String("container", format.Container),
		slog.String("codec", format.Codec))
	return nil
}

func (r *Recorder) selectFormat() (config.RecordFormat, bool) {
	for _, f := range r.cfg.Formats {
		if r.muxer.Supports(f) {
			return f, true
		}
	}
	return config.RecordFormat{}, false
}

func (r *Recorder) collect(sub <-chan capture.Frame, done chan struct{}) {
	defer close(done)
	for frame := range sub {
		r.mu.Lock()
		if !r.recording || r.sub != sub {
			r.mu.Unlock()
			return
		}
		r.chunks = append(r.chunks, frame.Data)
		r.mu.Unlock()
	}

	// The subscription closed underneath us: the stream died while
	// recording. Discard the buffer and surface a recording error.
	r.mu.Lock()
	interrupted := r.recording && r.sub == sub
	if interrupted {
		r.recording = false
		r.chunks = nil
		r.sub = nil
		r.source = nil
	}
	r.mu.Unlock()

	if interrupted {
		err := errors.New("recording interrupted: capture stream ended")
		r.logger.Warn("recording failed", slog.String("error", err.Error()))
		r.onError(err)
	}
}

// Stop finalizes the recording into an artifact. Idempotent: stopping
// while idle returns the last artifact, if any.
func (r *Recorder) Stop(ctx context.Context) (*Artifact, error) {
	r.mu.Lock()
	if !r.recording {
		artifact := r.artifact
		r.mu.Unlock()
		return artifact, nil
	}

	sub := r.sub
	source := r.source
	collected := r.collected
	r.recording = false
	r.sub = nil
	r.source = nil
	r.mu.Unlock()

	source.Unsubscribe(sub)
	<-collected

	r.mu.Lock()
	chunks := r.chunks
	format := r.format
	r.chunks = nil
	r.mu.Unlock()

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	createdAt := time.Now().UTC()
	stamp := strings.ReplaceAll(createdAt.Format(time.RFC3339), ":", "-")
	name := fmt.Sprintf("session-recording-%s.%s", stamp, extFor(format.Container))
	path := filepath.Join(r.cfg.OutputDir, name)

	if err := r.muxer.Mux(ctx, format, chunks, path); err != nil {
		return nil, fmt.Errorf("finalize recording: %w", err)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	artifact := &Artifact{
		ID:        uuid.NewString(),
		Path:      path,
		Container: format.Container,
		Codec:     format.Codec,
		Bytes:     size,
		CreatedAt: createdAt,
	}

	r.mu.Lock()
	r.artifact = artifact
	r.mu.Unlock()

	r.logger.Info("recording finalized",
		slog.String("path", path),
		slog.Int64("bytes", size))
	return artifact, nil
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Artifact returns the most recently finalized artifact, if any.
func (r *Recorder) Artifact() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.artifact
}

func extFor(container string) string {
	switch container {
	case "matroska":
		return "mkv"
	case "mjpeg":
		return "mjpeg"
	case "mp4":
		return "mp4"
	case "webm":
		return "webm"
	default:
		return container
	}
}
