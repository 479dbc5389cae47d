package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lectorlabs/lector-core/internal/capture"
	"github.com/lectorlabs/lector-core/internal/clipboard"
	"github.com/lectorlabs/lector-core/internal/config"
	"github.com/lectorlabs/lector-core/internal/record"
	"github.com/lectorlabs/lector-core/internal/session"
	"github.com/lectorlabs/lector-core/internal/speech"
	"github.com/lectorlabs/lector-core/internal/vision"
)

func newTestRuntime(t *testing.T) (*Runtime, *capture.MockOpener) {
	t.Helper()

	cfg := config.Default()
	cfg.Session.PollIntervalMS = 50
	cfg.Record.OutputDir = t.TempDir()
	cfg.Record.Formats = []config.RecordFormat{{Container: "mjpeg", Codec: "mjpeg"}}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opener := capture.NewMockOpener()

	mgr := session.New(context.Background(), cfg, session.Deps{
		Opener:     opener,
		Recognizer: vision.NewMockRecognizer(),
		Synth:      speech.NewMockSynth(cfg.Speech.SampleRate, cfg.Speech.Channels),
		SpeechSink: drainSink{},
		Muxer:      record.NewRawMuxer(),
		Copier:     &clipboard.MemoryCopier{},
		Events:     session.NopSink{},
	}, log)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	rt := New(cfg, log)
	rt.manager = mgr
	rt.ready.Store(true)
	return rt, opener
}

type drainSink struct{}

func (drainSink) Play(_ context.Context, chunks <-chan speech.SynthChunk) error {
	for range chunks {
	}
	return nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	rt, _ := newTestRuntime(t)
	h := rt.routes()

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	rt.ready.Store(false)
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz after unready = %d", rec.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	rt, _ := newTestRuntime(t)
	h := rt.routes()

	rec := do(t, h, http.MethodGet, "/v1/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st session.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.InputType != string(capture.InputNone) {
		t.Fatalf("InputType = %q", st.InputType)
	}

	rec = do(t, h, http.MethodPost, "/v1/session/camera", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start camera = %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.InputType != string(capture.InputCamera) || st.SessionID == "" {
		t.Fatalf("status after start = %+v", st)
	}

	rec = do(t, h, http.MethodPost, "/v1/session/screen", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("switch to screen = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.InputType != string(capture.InputScreen) {
		t.Fatalf("InputType = %q after switch", st.InputType)
	}

	rec = do(t, h, http.MethodDelete, "/v1/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.InputType != string(capture.InputNone) {
		t.Fatalf("InputType = %q after stop", st.InputType)
	}
}

func TestRecordingEndpointWithoutSession(t *testing.T) {
	rt, _ := newTestRuntime(t)
	h := rt.routes()

	rec := do(t, h, http.MethodPost, "/v1/recording", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("recording without session = %d, want 409", rec.Code)
	}

	// Stopping with nothing ever recorded reports no content.
	rec = do(t, h, http.MethodDelete, "/v1/recording", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("stop recording while idle = %d, want 204", rec.Code)
	}
}

func TestSpeechEndpoint(t *testing.T) {
	rt, _ := newTestRuntime(t)
	h := rt.routes()

	rec := do(t, h, http.MethodPut, "/v1/speech", `{"rate": 5.0, "voice": ""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set speech = %d", rec.Code)
	}
	var settings session.SpeechSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.Rate != speech.MaxRate {
		t.Fatalf("Rate = %v, want clamped", settings.Rate)
	}

	rec = do(t, h, http.MethodPut, "/v1/speech", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body = %d", rec.Code)
	}
}

func TestClipboardEndpoint(t *testing.T) {
	rt, _ := newTestRuntime(t)
	h := rt.routes()

	rec := do(t, h, http.MethodPost, "/v1/clipboard", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("copy = %d", rec.Code)
	}
}
