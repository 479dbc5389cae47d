package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectorlabs/lector-core/internal/capture"
	"github.com/lectorlabs/lector-core/internal/clipboard"
	"github.com/lectorlabs/lector-core/internal/config"
	"github.com/lectorlabs/lector-core/internal/eventstore"
	"github.com/lectorlabs/lector-core/internal/protocol"
	"github.com/lectorlabs/lector-core/internal/record"
	"github.com/lectorlabs/lector-core/internal/speech"
	"github.com/lectorlabs/lector-core/internal/vision"
)

// Deps carries the backends the manager drives. Every field except
// Store and Events is required.
type Deps struct {
	Opener     capture.Opener
	Recognizer vision.Recognizer
	Synth      speech.Synthesizer
	SpeechSink speech.Sink
	Muxer      record.Muxer
	Copier     clipboard.Copier
	Events     EventSink
	Store      *eventstore.Store
}

// Manager owns the capture session state machine: exactly one live
// source at a time, a poll loop that sends the freshest frame to the
// recognizer, a preempting announcer, and an optional recorder that
// borrows the live stream.
type Manager struct {
	cfg     config.Config
	logger  *slog.Logger
	lifeCtx context.Context

	opener     capture.Opener
	recognizer vision.Recognizer
	announcer  *speech.Announcer
	recorder   *record.Recorder
	copier     clipboard.Copier
	events     EventSink
	store      *eventstore.Store
	metrics    *sessionMetrics

	mu sync.Mutex
	// epoch increments on every source start and teardown. A recognition
	// result carrying a stale epoch is discarded without side effects.
	epoch        int
	sessionID    string
	input        capture.InputType
	source       capture.Source
	pollCancel   context.CancelFunc
	pollDone     chan struct{}
	recognizing  sync.WaitGroup
	inflight     bool
	halted       bool
	lastDetected string
	lastSpoken   string
	lastErr      *StateError
	speech       SpeechSettings
}

// New builds a manager bound to ctx; ctx ending invalidates all
// in-flight recognition calls.
func New(ctx context.Context, cfg config.Config, deps Deps, log *slog.Logger) *Manager {
	m := &Manager{
		cfg:        cfg,
		logger:     log.With(slog.String("component", "session")),
		lifeCtx:    ctx,
		opener:     deps.Opener,
		recognizer: deps.Recognizer,
		copier:     deps.Copier,
		events:     deps.Events,
		store:      deps.Store,
		input:      capture.InputNone,
		speech:     SpeechSettings{Rate: cfg.Speech.Rate, Voice: cfg.Speech.Voice},
	}
	if m.events == nil {
		m.events = NopSink{}
	}
	m.metrics = newSessionMetrics(m.logger)
	m.announcer = speech.NewAnnouncer(cfg.Speech, deps.Synth, deps.SpeechSink, log, func(err error) {
		m.surfaceError(CodeSpeech, err.Error())
	})
	m.recorder = record.NewRecorder(cfg.Record, deps.Muxer, log, func(err error) {
		m.surfaceError(CodeRecording, err.Error())
	})
	return m
}

// StartCamera switches the live stream to the camera, tearing down any
// current session first.
func (m *Manager) StartCamera(ctx context.Context) error {
	return m.start(ctx, capture.InputCamera)
}

// StartScreen switches the live stream to screen capture, tearing down
// any current session first.
func (m *Manager) StartScreen(ctx context.Context) error {
	return m.start(ctx, capture.InputScreen)
}

func (m *Manager) start(ctx context.Context, input capture.InputType) error {
	if err := m.Stop(ctx); err != nil {
		m.logger.Warn("teardown before start failed", slogError(err))
	}

	// The capture process must outlive the start request, so it binds
	// to the manager's lifetime rather than the caller's context.
	source, err := m.opener.Open(m.lifeCtx, input)
	if err != nil {
		code := CodeCapture
		if errors.Is(err, capture.ErrPermissionDenied) {
			code = CodePermissionDenied
		}
		m.surfaceError(code, fmt.Sprintf("failed to start %s capture: %v", input, err))
		return err
	}

	pollCtx, cancel := context.WithCancel(m.lifeCtx)
	done := make(chan struct{})

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.sessionID = uuid.NewString()
	m.input = input
	m.source = source
	m.pollCancel = cancel
	m.pollDone = done
	m.inflight = false
	m.halted = false
	m.lastErr = nil
	sessionID := m.sessionID
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.AppendSession(m.lifeCtx, sessionID, string(input)); err != nil {
			m.logger.Warn("failed to record session start", slogError(err))
		}
	}
	m.events.SessionState(protocol.SessionState{
		SessionID: sessionID,
		InputType: string(input),
		Timestamp: time.Now().UTC(),
	})

	go m.watchSource(source, epoch)
	go m.pollLoop(pollCtx, source, epoch, done)

	m.logger.Info("capture session started",
		slog.String("session_id", sessionID),
		slog.String("input", string(input)))
	return nil
}

// watchSource reacts to the stream dying out-of-band, for example the
// user revoking screen sharing. A teardown we initiated ourselves bumps
// the epoch first, so this watcher only fires for external loss.
func (m *Manager) watchSource(source capture.Source, epoch int) {
	select {
	case <-source.Done():
	case <-m.lifeCtx.Done():
		return
	}

	m.mu.Lock()
	current := m.epoch == epoch && m.source == source
	sessionID := m.sessionID
	m.mu.Unlock()
	if !current {
		return
	}

	cause := source.Err()
	msg := "capture stream ended"
	if cause != nil {
		msg = fmt.Sprintf("capture stream ended: %v", cause)
	}
	m.logger.Warn("capture stream lost", slog.String("error", msg))

	if err := m.Stop(context.Background()); err != nil {
		m.logger.Warn("teardown after stream loss failed", slogError(err))
	}

	// Stop cleared the session fields; the error event still names the
	// session that lost its stream.
	m.mu.Lock()
	m.lastErr = &StateError{Code: CodeCapture, Message: msg}
	m.mu.Unlock()
	m.emitError(sessionID, CodeCapture, msg)
}

func (m *Manager) pollLoop(ctx context.Context, source capture.Source, epoch int, done chan struct{}) {
	defer close(done)

	interval := time.Duration(m.cfg.Session.PollIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollTick(source, epoch)
		}
	}
}

func (m *Manager) pollTick(source capture.Source, epoch int) {
	m.mu.Lock()
	if m.epoch != epoch || m.source != source || m.halted {
		m.mu.Unlock()
		return
	}
	if m.inflight {
		m.mu.Unlock()
		m.metrics.recordSkippedTick(m.lifeCtx)
		return
	}
	frame, ok := source.Latest()
	if !ok {
		m.mu.Unlock()
		return
	}
	m.inflight = true
	// Registered under mu so Stop's epoch bump and its Wait cannot
	// interleave with this tick.
	m.recognizing.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.recognizing.Done()
		m.recognizeOnce(frame, source, epoch)
	}()
}

// recognizeOnce runs under the manager's lifetime context rather than
// the poll context: stopping the session lets the call finish, then
// discards its result through the epoch check.
func (m *Manager) recognizeOnce(frame capture.Frame, source capture.Source, epoch int) {
	started := time.Now()
	res, err := m.recognizer.Recognize(m.lifeCtx, frame.Data, m.cfg.Vision.Instructions)

	var class vision.Class
	if err != nil {
		class = vision.Classify(err)
	}
	m.metrics.recordRecognition(m.lifeCtx, time.Since(started), string(class))

	m.mu.Lock()
	if m.epoch != epoch || m.source != source {
		m.mu.Unlock()
		return
	}
	m.inflight = false

	if err != nil {
		code := codeForClass(class)
		m.lastDetected = ""
		m.lastErr = &StateError{Code: code, Message: err.Error()}
		if code == CodeCredential && m.cfg.Session.HaltOnCredentialError {
			m.halted = true
		}
		sessionID := m.sessionID
		halted := m.halted
		m.mu.Unlock()

		m.logger.Warn("recognition failed",
			slog.String("class", string(class)), slogError(err))
		if halted {
			m.logger.Warn("polling halted until the session restarts")
		}
		m.emitError(sessionID, code, err.Error())
		return
	}

	m.lastErr = nil
	text := res.Text
	sessionID := m.sessionID
	speak := false
	var settings SpeechSettings
	if text != "" {
		m.lastDetected = text
		if text != m.lastSpoken {
			m.lastSpoken = text
			speak = true
			settings = m.speech
		}
	}
	m.mu.Unlock()

	if text == "" {
		return
	}
	m.events.Detection(protocol.Detection{
		SessionID: sessionID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	m.appendEvent(sessionID, "detection", text)

	if speak {
		m.announcer.Announce(m.lifeCtx, text, settings.Rate, settings.Voice)
		m.metrics.recordUtterance(m.lifeCtx)
		m.events.Announcement(protocol.Announcement{
			SessionID: sessionID,
			Text:      text,
			Voice:     m.announcer.ResolveVoice(settings.Voice),
			Rate:      speech.ClampRate(settings.Rate),
			Timestamp: time.Now().UTC(),
		})
		m.appendEvent(sessionID, "speech", text)
	}
}

// Stop tears the session down: recording finalizes first while the
// stream still exists, speech is cut, then the source is released.
// Idempotent; stopping while idle only clears display state.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	source := m.source
	cancel := m.pollCancel
	done := m.pollDone
	sessionID := m.sessionID

	m.epoch++
	m.source = nil
	m.input = capture.InputNone
	m.sessionID = ""
	m.pollCancel = nil
	m.pollDone = nil
	m.inflight = false
	m.halted = false
	m.lastDetected = ""
	m.lastSpoken = ""
	m.lastErr = nil
	m.mu.Unlock()

	if source == nil {
		return nil
	}

	if cancel != nil {
		cancel()
	}
	// A recognition that already passed the epoch check may be about
	// to announce; let it finish so the cancel below silences it.
	m.recognizing.Wait()
	if m.recorder.Recording() {
		artifact, err := m.recorder.Stop(ctx)
		if err != nil {
			m.logger.Warn("failed to finalize recording during teardown", slogError(err))
		} else if artifact != nil {
			m.emitArtifact(sessionID, artifact)
		}
	}
	m.announcer.Cancel()
	if err := source.Stop(); err != nil {
		m.logger.Warn("failed to stop capture source", slogError(err))
	}
	if done != nil {
		<-done
	}

	if m.store != nil {
		if err := m.store.EndSession(ctx, sessionID); err != nil {
			m.logger.Warn("failed to apply session retention", slogError(err))
		}
	}
	m.events.SessionState(protocol.SessionState{
		SessionID: sessionID,
		InputType: string(capture.InputNone),
		Timestamp: time.Now().UTC(),
	})
	m.logger.Info("capture session stopped", slog.String("session_id", sessionID))
	return nil
}

// StartRecording begins buffering the live stream. No-op when already
// recording; fails when no stream is active or no configured format is
// supported by the muxer.
func (m *Manager) StartRecording() error {
	m.mu.Lock()
	source := m.source
	sessionID := m.sessionID
	input := m.input
	m.mu.Unlock()

	var err error
	if source == nil {
		err = record.ErrNoActiveStream
	} else {
		err = m.recorder.Start(source)
	}
	if err != nil {
		code := CodeRecording
		if errors.Is(err, record.ErrUnsupportedFormat) {
			code = CodeUnsupportedFormat
		}
		m.surfaceError(code, err.Error())
		return err
	}

	m.events.SessionState(protocol.SessionState{
		SessionID: sessionID,
		InputType: string(input),
		Recording: true,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// StopRecording finalizes the active recording into an artifact.
// Idempotent: stopping while idle returns the previous artifact, if
// any, without emitting fresh events.
func (m *Manager) StopRecording(ctx context.Context) (*record.Artifact, error) {
	wasRecording := m.recorder.Recording()

	artifact, err := m.recorder.Stop(ctx)
	if err != nil {
		m.surfaceError(CodeRecording, err.Error())
		return nil, err
	}
	if !wasRecording || artifact == nil {
		return artifact, nil
	}

	m.mu.Lock()
	sessionID := m.sessionID
	input := m.input
	m.mu.Unlock()

	m.emitArtifact(sessionID, artifact)
	m.events.SessionState(protocol.SessionState{
		SessionID: sessionID,
		InputType: string(input),
		Recording: false,
		Timestamp: time.Now().UTC(),
	})
	return artifact, nil
}

// CopyDetected places the most recent detected text on the clipboard.
// Copying an empty detection is allowed and clears the clipboard entry.
func (m *Manager) CopyDetected(ctx context.Context) error {
	m.mu.Lock()
	text := m.lastDetected
	m.mu.Unlock()

	if m.copier == nil {
		err := errors.New("no clipboard backend configured")
		m.surfaceError(CodeClipboard, err.Error())
		return err
	}
	if err := m.copier.SetText(ctx, text); err != nil {
		m.surfaceError(CodeClipboard, err.Error())
		return err
	}

	m.mu.Lock()
	m.lastErr = nil
	m.mu.Unlock()
	return nil
}

// SetSpeech updates the voice and rate used for future announcements.
// The settings survive source switches but not manager restarts.
func (m *Manager) SetSpeech(rate float64, voice string) SpeechSettings {
	settings := SpeechSettings{
		Rate:  speech.ClampRate(rate),
		Voice: m.announcer.ResolveVoice(voice),
	}
	m.mu.Lock()
	m.speech = settings
	m.mu.Unlock()
	return settings
}

// Status snapshots the state machine.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		SessionID:    m.sessionID,
		InputType:    string(m.input),
		Recording:    m.recorder.Recording(),
		InFlight:     m.inflight,
		Halted:       m.halted,
		LastDetected: m.lastDetected,
		LastSpoken:   m.lastSpoken,
		LastError:    m.lastErr,
		Speech:       m.speech,
	}
}

// Close tears down any live session. Safe to call more than once.
func (m *Manager) Close(ctx context.Context) error {
	return m.Stop(ctx)
}

func (m *Manager) surfaceError(code ErrorCode, msg string) {
	m.mu.Lock()
	m.lastErr = &StateError{Code: code, Message: msg}
	sessionID := m.sessionID
	m.mu.Unlock()
	m.emitError(sessionID, code, msg)
}

func (m *Manager) emitArtifact(sessionID string, artifact *record.Artifact) {
	m.events.RecordingArtifact(protocol.RecordingArtifact{
		SessionID: sessionID,
		Path:      artifact.Path,
		Container: artifact.Container,
		Codec:     artifact.Codec,
		Bytes:     artifact.Bytes,
		Timestamp: artifact.CreatedAt,
	})
	m.appendEvent(sessionID, "recording", artifact.Path)
}

func (m *Manager) emitError(sessionID string, code ErrorCode, msg string) {
	m.events.SessionError(protocol.SessionError{
		SessionID: sessionID,
		Code:      string(code),
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
	m.appendEvent(sessionID, string(code), msg)
}

func (m *Manager) appendEvent(sessionID, eventType, payload string) {
	if m.store == nil || sessionID == "" {
		return
	}
	evt := eventstore.Event{SessionID: sessionID, Type: eventType, Payload: []byte(payload)}
	if err := m.store.AppendEvent(m.lifeCtx, evt); err != nil {
		m.logger.Warn("failed to append event",
			slog.String("type", eventType), slogError(err))
	}
}

func codeForClass(class vision.Class) ErrorCode {
	switch class {
	case vision.ClassInvalidCredentials:
		return CodeCredential
	case vision.ClassUpstream:
		return CodeUpstream
	default:
		return CodeUnknown
	}
}
