package session

// ErrorCode classifies the single most-recent user-visible error. New
// errors overwrite old ones; successful operations clear it.
type ErrorCode string

const (
	CodeCredential        ErrorCode = "credential_error"
	CodePermissionDenied  ErrorCode = "permission_denied"
	CodeUpstream          ErrorCode = "upstream_error"
	CodeUnknown           ErrorCode = "unknown"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeRecording         ErrorCode = "recording_error"
	CodeClipboard         ErrorCode = "clipboard_error"
	CodeSpeech            ErrorCode = "speech_error"
	CodeCapture           ErrorCode = "capture_error"
)

// StateError is the displayed error: code plus human-readable message.
type StateError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SpeechSettings persist across input source changes.
type SpeechSettings struct {
	Rate  float64 `json:"rate"`
	Voice string  `json:"voice"`
}

// Status is a point-in-time snapshot of the session state machine.
type Status struct {
	SessionID    string         `json:"session_id,omitempty"`
	InputType    string         `json:"input_type"`
	Recording    bool           `json:"recording"`
	InFlight     bool           `json:"recognition_in_flight"`
	Halted       bool           `json:"polling_halted"`
	LastDetected string         `json:"last_detected"`
	LastSpoken   string         `json:"last_spoken"`
	LastError    *StateError    `json:"last_error,omitempty"`
	Speech       SpeechSettings `json:"speech"`
}
