package speech

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lectorlabs/lector-core/internal/config"
)

const (
	MinRate = 0.5
	MaxRate = 2.0
)

// Announcer speaks recognized text. There is no queue: a new utterance
// always preempts the one currently playing.
type Announcer struct {
	cfg     config.SpeechConfig
	synth   Synthesizer
	sink    Sink
	logger  *slog.Logger
	onError func(error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	playing chan struct{}
}

func NewAnnouncer(cfg config.SpeechConfig, synth Synthesizer, sink Sink, log *slog.Logger, onError func(error)) *Announcer {
	if onError == nil {
		onError = func(error) {}
	}
	return &Announcer{
		cfg:     cfg,
		synth:   synth,
		sink:    sink,
		logger:  log.With(slog.String("component", "announcer")),
		onError: onError,
	}
}

// Announce cancels any in-flight utterance and speaks text with the
// requested rate and voice. Failures are reported through the error
// callback and never propagate to the caller.
func (a *Announcer) Announce(ctx context.Context, text string, rate float64, voiceID string) {
	if text == "" {
		return
	}
	voice := a.ResolveVoice(voiceID)
	rate = ClampRate(rate)

	a.mu.Lock()
	prevCancel := a.cancel
	prevPlaying := a.playing

	uttCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel = cancel
	a.playing = done
	a.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevPlaying
	}

	go func() {
		defer close(done)
		defer cancel()

		chunks, errs := a.synth.Synthesize(uttCtx, SynthRequest{Text: text, Voice: voice, Rate: rate})
		playErr := make(chan error, 1)
		go func() {
			playErr <- a.sink.Play(uttCtx, chunks)
		}()

		for err := range errs {
			if err != nil && uttCtx.Err() == nil {
				a.logger.Warn("speech synthesis error", slog.String("error", err.Error()))
				a.onError(err)
			}
		}
		if err := <-playErr; err != nil && uttCtx.Err() == nil {
			a.logger.Warn("speech playback error", slog.String("error", err.Error()))
			a.onError(err)
		}
	}()
}

// Cancel stops the current utterance, if any, and waits for silence.
func (a *Announcer) Cancel() {
	a.mu.Lock()
	cancel := a.cancel
	playing := a.playing
	a.cancel = nil
	a.playing = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-playing
	}
}

// ResolveVoice looks id up among the configured voices and falls back
// to the default voice when not found.
func (a *Announcer) ResolveVoice(id string) string {
	if id == "" {
		return a.cfg.Voice
	}
	for _, v := range a.cfg.Voices {
		if v == id {
			return id
		}
	}
	if id == a.cfg.Voice {
		return id
	}
	return a.cfg.Voice
}

// ClampRate bounds a speech rate to the supported range.
func ClampRate(rate float64) float64 {
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}
