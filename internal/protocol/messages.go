package protocol

import "time"

// SessionState is broadcast whenever the capture session changes shape.
type SessionState struct {
	SessionID string    `json:"session_id"`
	InputType string    `json:"input_type"`
	Recording bool      `json:"recording"`
	Timestamp time.Time `json:"timestamp"`
}

// Detection carries one recognized-text result from a poll cycle.
type Detection struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Announcement records a spoken utterance.
type Announcement struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Voice     string    `json:"voice"`
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordingArtifact describes a finalized session recording.
type RecordingArtifact struct {
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`
	Container string    `json:"container"`
	Codec     string    `json:"codec"`
	Bytes     int64     `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionError surfaces a classified, non-fatal error.
type SessionError struct {
	SessionID string    `json:"session_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSessionState      = "lector.session.state"
	SubjectDetection         = "lector.session.detection"
	SubjectAnnouncement      = "lector.session.speech"
	SubjectRecordingArtifact = "lector.session.recording"
	SubjectError             = "lector.session.error"
)
