package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lectorlabs/lector-core/internal/record"
)

// routes exposes the control API. The daemon has no UI of its own;
// front ends drive the session over these endpoints and follow live
// state on the bus.
func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", r.handleReady)

	mux.HandleFunc("GET /v1/session", r.handleSessionStatus)
	mux.HandleFunc("POST /v1/session/camera", r.handleStartCamera)
	mux.HandleFunc("POST /v1/session/screen", r.handleStartScreen)
	mux.HandleFunc("DELETE /v1/session", r.handleStopSession)

	mux.HandleFunc("POST /v1/recording", r.handleStartRecording)
	mux.HandleFunc("DELETE /v1/recording", r.handleStopRecording)

	mux.HandleFunc("POST /v1/clipboard", r.handleCopyDetected)
	mux.HandleFunc("PUT /v1/speech", r.handleSetSpeech)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	r.writeJSON(w, http.StatusOK, r.manager.Status())
}

func (r *Runtime) handleStartCamera(w http.ResponseWriter, req *http.Request) {
	if err := r.manager.StartCamera(req.Context()); err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, r.manager.Status())
}

func (r *Runtime) handleStartScreen(w http.ResponseWriter, req *http.Request) {
	if err := r.manager.StartScreen(req.Context()); err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, r.manager.Status())
}

func (r *Runtime) handleStopSession(w http.ResponseWriter, req *http.Request) {
	if err := r.manager.Stop(req.Context()); err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, r.manager.Status())
}

func (r *Runtime) handleStartRecording(w http.ResponseWriter, _ *http.Request) {
	if err := r.manager.StartRecording(); err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, r.manager.Status())
}

func (r *Runtime) handleStopRecording(w http.ResponseWriter, req *http.Request) {
	artifact, err := r.manager.StopRecording(req.Context())
	if err != nil {
		r.writeError(w, err)
		return
	}
	if artifact == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	r.writeJSON(w, http.StatusOK, artifact)
}

func (r *Runtime) handleCopyDetected(w http.ResponseWriter, req *http.Request) {
	if err := r.manager.CopyDetected(req.Context()); err != nil {
		r.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handleSetSpeech(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Rate  float64 `json:"rate"`
		Voice string  `json:"voice"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	settings := r.manager.SetSpeech(body.Rate, body.Voice)
	r.writeJSON(w, http.StatusOK, settings)
}

func (r *Runtime) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func (r *Runtime) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, record.ErrNoActiveStream):
		status = http.StatusConflict
	case errors.Is(err, record.ErrUnsupportedFormat):
		status = http.StatusUnprocessableEntity
	}
	r.writeJSON(w, status, map[string]string{"error": err.Error()})
}
