package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lectorlabs/lector-core/internal/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// blockingSynth streams a chunk, then holds the utterance open until the
// context is cancelled. It records how many utterances were live at once.
type blockingSynth struct {
	mu      sync.Mutex
	live    int
	maxLive int
	spoken  []string
}

func (s *blockingSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	s.mu.Lock()
	s.live++
	if s.live > s.maxLive {
		s.maxLive = s.live
	}
	s.spoken = append(s.spoken, req.Text)
	s.mu.Unlock()

	go func() {
		defer close(chunks)
		defer close(errs)
		defer func() {
			s.mu.Lock()
			s.live--
			s.mu.Unlock()
		}()
		chunks <- SynthChunk{PCM: []byte{0, 0}, SampleRate: 22050, Channels: 1}
		<-ctx.Done()
	}()
	return chunks, errs
}

type discardSink struct{}

func (discardSink) Play(_ context.Context, chunks <-chan SynthChunk) error {
	for range chunks {
	}
	return nil
}

type failingSink struct{}

func (failingSink) Play(_ context.Context, chunks <-chan SynthChunk) error {
	for range chunks {
	}
	return errors.New("no audio device")
}

func testConfig() config.SpeechConfig {
	return config.SpeechConfig{
		Voice:  "en-US",
		Voices: []string{"en-US", "en-GB", "de-DE"},
		Rate:   1.0,
	}
}

func TestAnnouncePreemptsPriorUtterance(t *testing.T) {
	synth := &blockingSynth{}
	a := NewAnnouncer(testConfig(), synth, discardSink{}, newTestLogger(), nil)

	a.Announce(context.Background(), "first", 1.0, "")
	a.Announce(context.Background(), "second", 1.0, "")
	a.Cancel()

	synth.mu.Lock()
	defer synth.mu.Unlock()
	if synth.maxLive > 1 {
		t.Fatalf("expected at most one audible utterance, saw %d", synth.maxLive)
	}
	if len(synth.spoken) != 2 || synth.spoken[1] != "second" {
		t.Fatalf("unexpected utterances: %v", synth.spoken)
	}
}

func TestAnnounceIgnoresEmptyText(t *testing.T) {
	synth := &blockingSynth{}
	a := NewAnnouncer(testConfig(), synth, discardSink{}, newTestLogger(), nil)
	a.Announce(context.Background(), "", 1.0, "")
	a.Cancel()
	synth.mu.Lock()
	defer synth.mu.Unlock()
	if len(synth.spoken) != 0 {
		t.Fatalf("expected no utterance, got %v", synth.spoken)
	}
}

func TestAnnounceReportsSinkErrors(t *testing.T) {
	errCh := make(chan error, 1)
	a := NewAnnouncer(testConfig(), NewMockSynth(22050, 1), failingSink{}, newTestLogger(), func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	a.Announce(context.Background(), "hello", 1.0, "")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected playback error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback error")
	}
	a.Cancel()
}

func TestResolveVoiceFallsBack(t *testing.T) {
	a := NewAnnouncer(testConfig(), NewMockSynth(22050, 1), discardSink{}, newTestLogger(), nil)
	if got := a.ResolveVoice("de-DE"); got != "de-DE" {
		t.Fatalf("expected known voice kept, got %s", got)
	}
	if got := a.ResolveVoice("xx-XX"); got != "en-US" {
		t.Fatalf("expected fallback to default voice, got %s", got)
	}
	if got := a.ResolveVoice(""); got != "en-US" {
		t.Fatalf("expected default voice for empty id, got %s", got)
	}
}

func TestClampRate(t *testing.T) {
	if got := ClampRate(0.1); got != MinRate {
		t.Fatalf("expected clamp to %v, got %v", MinRate, got)
	}
	if got := ClampRate(5); got != MaxRate {
		t.Fatalf("expected clamp to %v, got %v", MaxRate, got)
	}
	if got := ClampRate(1.25); got != 1.25 {
		t.Fatalf("expected 1.25 unchanged, got %v", got)
	}
}
