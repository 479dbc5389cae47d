package record

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lectorlabs/lector-core/internal/capture"
	"github.com/lectorlabs/lector-core/internal/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRecordConfig(t *testing.T) config.RecordConfig {
	return config.RecordConfig{
		OutputDir: t.TempDir(),
		Formats: []config.RecordFormat{
			{Container: "matroska", Codec: "mjpeg"},
			{Container: "mjpeg", Codec: "mjpeg"},
		},
	}
}

func TestStartWithoutSourceFails(t *testing.T) {
	r := NewRecorder(testRecordConfig(t), NewRawMuxer(), newTestLogger(), nil)
	if err := r.Start(nil); err != ErrNoActiveStream {
		t.Fatalf("expected ErrNoActiveStream, got %v", err)
	}
	if r.Recording() {
		t.Fatal("failed start must not enter recording state")
	}
}

func TestStartWithoutSupportedFormatFails(t *testing.T) {
	cfg := testRecordConfig(t)
	cfg.Formats = []config.RecordFormat{{Container: "mp4", Codec: "h264"}}
	r := NewRecorder(cfg, NewRawMuxer(), newTestLogger(), nil)
	if err := r.Start(capture.NewMockSource(capture.InputCamera)); err != ErrUnsupportedFormat {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRecordAndFinalize(t *testing.T) {
	src := capture.NewMockSource(capture.InputCamera)
	r := NewRecorder(testRecordConfig(t), NewRawMuxer(), newTestLogger(), nil)

	if err := r.Start(src); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.Push([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9})
	src.Push([]byte{0xFF, 0xD8, 0x02, 0xFF, 0xD9})
	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.chunks) == 2
	})

	artifact, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if artifact == nil {
		t.Fatal("expected artifact")
	}
	if !strings.Contains(artifact.Path, "session-recording-") {
		t.Fatalf("unexpected artifact name: %s", artifact.Path)
	}
	if artifact.Container != "mjpeg" {
		t.Fatalf("expected raw muxer preference pick, got %s", artifact.Container)
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(data) != 10 {
		t.Fatalf("expected 10 bytes of chunks, got %d", len(data))
	}
	if artifact.Bytes != 10 {
		t.Fatalf("expected artifact size recorded, got %d", artifact.Bytes)
	}
}

func TestDoubleStartIsNoOp(t *testing.T) {
	src := capture.NewMockSource(capture.InputCamera)
	r := NewRecorder(testRecordConfig(t), NewRawMuxer(), newTestLogger(), nil)

	if err := r.Start(src); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(src); err != nil {
		t.Fatalf("second start must be a no-op, got %v", err)
	}
	src.Push([]byte{0x01})

	first, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Idempotent stop returns the same artifact, no second one appears.
	second, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if first == nil || second != first {
		t.Fatalf("expected one artifact from one recording, got %v and %v", first, second)
	}
}

func TestStreamLossForcesIdleAndSurfacesError(t *testing.T) {
	src := capture.NewMockSource(capture.InputScreen)
	errCh := make(chan error, 1)
	r := NewRecorder(testRecordConfig(t), NewRawMuxer(), newTestLogger(), func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	if err := r.Start(src); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.Terminate(nil)

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recording error")
	}
	if r.Recording() {
		t.Fatal("expected recorder forced back to idle")
	}
	if artifact, _ := r.Stop(context.Background()); artifact != nil {
		t.Fatalf("interrupted recording must not produce an artifact, got %+v", artifact)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
