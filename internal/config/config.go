package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Capture     CaptureConfig    `yaml:"capture"`
	Vision      VisionConfig     `yaml:"vision"`
	Session     SessionConfig    `yaml:"session"`
	Speech      SpeechConfig     `yaml:"speech"`
	Record      RecordConfig     `yaml:"record"`
	Clipboard   ClipboardConfig  `yaml:"clipboard"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// CaptureInput describes how one capture origin is acquired by the
// external encoder process.
type CaptureInput struct {
	Format string `yaml:"format"`
	Device string `yaml:"device"`
}

type CaptureConfig struct {
	Command   string       `yaml:"command"`
	Camera    CaptureInput `yaml:"camera"`
	Screen    CaptureInput `yaml:"screen"`
	Width     int          `yaml:"width"`
	Height    int          `yaml:"height"`
	FrameRate int          `yaml:"frame_rate"`
}

type VisionConfig struct {
	Mode             string `yaml:"mode"` // mock, openai
	Endpoint         string `yaml:"endpoint"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	Instructions     string `yaml:"instructions"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

type SessionConfig struct {
	PollIntervalMS        int  `yaml:"poll_interval_ms"`
	HaltOnCredentialError bool `yaml:"halt_on_credential_error"`
}

type SpeechConfig struct {
	Mode       string   `yaml:"mode"` // mock, exec
	Command    string   `yaml:"command"`
	Voice      string   `yaml:"voice"`
	Voices     []string `yaml:"voices"`
	Rate       float64  `yaml:"rate"`
	SampleRate int      `yaml:"sample_rate"`
	Channels   int      `yaml:"channels"`
	Sink       string   `yaml:"sink"` // exec, wav
	PlayerCmd  string   `yaml:"player_command"`
	WavDir     string   `yaml:"wav_dir"`
}

// RecordFormat is one container/codec combination in preference order.
type RecordFormat struct {
	Container string `yaml:"container"`
	Codec     string `yaml:"codec"`
}

type RecordConfig struct {
	OutputDir string         `yaml:"output_dir"`
	Formats   []RecordFormat `yaml:"formats"`
	MuxerMode string         `yaml:"muxer_mode"` // exec, raw
	MuxerCmd  string         `yaml:"muxer_command"`
}

type ClipboardConfig struct {
	Command string `yaml:"command"`
}

func Default() Config {
	return Config{
		RuntimeName: "lector-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/lector-events.db",
			RetentionMode: "ephemeral",
			RetentionDays: 0,
			MaxSessions:   1000,
		},
		Capture: CaptureConfig{
			Command:   "ffmpeg",
			Camera:    CaptureInput{Format: "v4l2", Device: "/dev/video0"},
			Screen:    CaptureInput{Format: "x11grab", Device: ":0.0"},
			Width:     1280,
			Height:    720,
			FrameRate: 10,
		},
		Vision: VisionConfig{
			Mode:             "mock",
			Endpoint:         "https://api.openai.com",
			Model:            "gpt-4o-mini",
			RequestTimeoutMS: 0,
		},
		Session: SessionConfig{
			PollIntervalMS:        1500,
			HaltOnCredentialError: false,
		},
		Speech: SpeechConfig{
			Mode:       "mock",
			Voice:      "en-US",
			Rate:       1.0,
			SampleRate: 22050,
			Channels:   1,
			Sink:       "wav",
			WavDir:     "./data/speech",
		},
		Record: RecordConfig{
			OutputDir: "./data/recordings",
			Formats: []RecordFormat{
				{Container: "matroska", Codec: "mjpeg"},
				{Container: "avi", Codec: "mjpeg"},
				{Container: "mjpeg", Codec: "mjpeg"},
			},
			MuxerMode: "raw",
			MuxerCmd:  "ffmpeg",
		},
		Clipboard: ClipboardConfig{
			Command: "wl-copy",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LECTOR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LECTOR_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LECTOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LECTOR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LECTOR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LECTOR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LECTOR_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LECTOR_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LECTOR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LECTOR_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LECTOR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LECTOR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LECTOR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LECTOR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LECTOR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LECTOR_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LECTOR_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LECTOR_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LECTOR_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LECTOR_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LECTOR_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Capture.Command, "LECTOR_CAPTURE_COMMAND")
	overrideString(&cfg.Capture.Camera.Format, "LECTOR_CAPTURE_CAMERA_FORMAT")
	overrideString(&cfg.Capture.Camera.Device, "LECTOR_CAPTURE_CAMERA_DEVICE")
	overrideString(&cfg.Capture.Screen.Format, "LECTOR_CAPTURE_SCREEN_FORMAT")
	overrideString(&cfg.Capture.Screen.Device, "LECTOR_CAPTURE_SCREEN_DEVICE")
	overrideInt(&cfg.Capture.Width, "LECTOR_CAPTURE_WIDTH")
	overrideInt(&cfg.Capture.Height, "LECTOR_CAPTURE_HEIGHT")
	overrideInt(&cfg.Capture.FrameRate, "LECTOR_CAPTURE_FRAME_RATE")
	overrideString(&cfg.Vision.Mode, "LECTOR_VISION_MODE")
	overrideString(&cfg.Vision.Endpoint, "LECTOR_VISION_ENDPOINT")
	overrideString(&cfg.Vision.APIKey, "LECTOR_VISION_API_KEY")
	overrideString(&cfg.Vision.Model, "LECTOR_VISION_MODEL")
	overrideString(&cfg.Vision.Instructions, "LECTOR_VISION_INSTRUCTIONS")
	overrideInt(&cfg.Vision.RequestTimeoutMS, "LECTOR_VISION_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Session.PollIntervalMS, "LECTOR_SESSION_POLL_INTERVAL_MS")
	overrideBool(&cfg.Session.HaltOnCredentialError, "LECTOR_SESSION_HALT_ON_CREDENTIAL_ERROR")
	overrideString(&cfg.Speech.Mode, "LECTOR_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "LECTOR_SPEECH_COMMAND")
	overrideString(&cfg.Speech.Voice, "LECTOR_SPEECH_VOICE")
	overrideStringSlice(&cfg.Speech.Voices, "LECTOR_SPEECH_VOICES")
	overrideFloat(&cfg.Speech.Rate, "LECTOR_SPEECH_RATE")
	overrideInt(&cfg.Speech.SampleRate, "LECTOR_SPEECH_SAMPLE_RATE")
	overrideInt(&cfg.Speech.Channels, "LECTOR_SPEECH_CHANNELS")
	overrideString(&cfg.Speech.Sink, "LECTOR_SPEECH_SINK")
	overrideString(&cfg.Speech.PlayerCmd, "LECTOR_SPEECH_PLAYER_COMMAND")
	overrideString(&cfg.Speech.WavDir, "LECTOR_SPEECH_WAV_DIR")
	overrideString(&cfg.Record.OutputDir, "LECTOR_RECORD_OUTPUT_DIR")
	overrideString(&cfg.Record.MuxerMode, "LECTOR_RECORD_MUXER_MODE")
	overrideString(&cfg.Record.MuxerCmd, "LECTOR_RECORD_MUXER_COMMAND")
	overrideString(&cfg.Clipboard.Command, "LECTOR_CLIPBOARD_COMMAND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Capture.Command == "" {
		return errors.New("capture.command must not be empty")
	}
	if cfg.Capture.Camera.Format == "" || cfg.Capture.Camera.Device == "" {
		return errors.New("capture.camera format and device must not be empty")
	}
	if cfg.Capture.Screen.Format == "" || cfg.Capture.Screen.Device == "" {
		return errors.New("capture.screen format and device must not be empty")
	}
	if cfg.Capture.FrameRate <= 0 {
		return errors.New("capture.frame_rate must be positive")
	}
	switch cfg.Vision.Mode {
	case "mock", "openai":
	default:
		return errors.New("vision.mode must be one of mock|openai")
	}
	if cfg.Vision.Mode == "openai" && cfg.Vision.Endpoint == "" {
		return errors.New("vision.endpoint must be set when mode=openai")
	}
	if cfg.Vision.RequestTimeoutMS < 0 {
		return errors.New("vision.request_timeout_ms must be >= 0")
	}
	if cfg.Session.PollIntervalMS <= 0 {
		return errors.New("session.poll_interval_ms must be positive")
	}
	switch cfg.Speech.Mode {
	case "mock", "exec":
	default:
		return errors.New("speech.mode must be one of mock|exec")
	}
	if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
		return errors.New("speech.command must be set when mode=exec")
	}
	if cfg.Speech.Rate < 0.5 || cfg.Speech.Rate > 2.0 {
		return errors.New("speech.rate must be between 0.5 and 2.0")
	}
	if cfg.Speech.SampleRate <= 0 {
		return errors.New("speech.sample_rate must be positive")
	}
	if cfg.Speech.Channels <= 0 {
		return errors.New("speech.channels must be positive")
	}
	switch cfg.Speech.Sink {
	case "exec", "wav":
	default:
		return errors.New("speech.sink must be one of exec|wav")
	}
	if cfg.Speech.Sink == "exec" && cfg.Speech.PlayerCmd == "" {
		return errors.New("speech.player_command must be set when sink=exec")
	}
	if cfg.Speech.Sink == "wav" && cfg.Speech.WavDir == "" {
		return errors.New("speech.wav_dir must be set when sink=wav")
	}
	if cfg.Record.OutputDir == "" {
		return errors.New("record.output_dir must not be empty")
	}
	if len(cfg.Record.Formats) == 0 {
		return errors.New("record.formats must not be empty")
	}
	switch cfg.Record.MuxerMode {
	case "exec", "raw":
	default:
		return errors.New("record.muxer_mode must be one of exec|raw")
	}
	if cfg.Record.MuxerMode == "exec" && cfg.Record.MuxerCmd == "" {
		return errors.New("record.muxer_command must be set when muxer_mode=exec")
	}
	if cfg.Clipboard.Command == "" {
		return errors.New("clipboard.command must not be empty")
	}
	return nil
}
