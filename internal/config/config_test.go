package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Session.PollIntervalMS != 1500 {
		t.Fatalf("expected default poll interval 1500, got %d", cfg.Session.PollIntervalMS)
	}
	if cfg.Session.HaltOnCredentialError {
		t.Fatal("expected credential failures to keep polling by default")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" {
		t.Fatalf("expected ephemeral retention by default, got %s", cfg.EventStore.RetentionMode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LECTOR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LECTOR_BUS_USERNAME", "alice")
	t.Setenv("LECTOR_BUS_PASSWORD", "secret")
	t.Setenv("LECTOR_VISION_MODE", "openai")
	t.Setenv("LECTOR_VISION_API_KEY", "sk-test")
	t.Setenv("LECTOR_VISION_MODEL", "gpt-4o")
	t.Setenv("LECTOR_VISION_INSTRUCTIONS", "prefer signage")
	t.Setenv("LECTOR_SESSION_POLL_INTERVAL_MS", "750")
	t.Setenv("LECTOR_SESSION_HALT_ON_CREDENTIAL_ERROR", "true")
	t.Setenv("LECTOR_SPEECH_RATE", "1.5")
	t.Setenv("LECTOR_SPEECH_VOICES", "en-US, en-GB")
	t.Setenv("LECTOR_CAPTURE_CAMERA_DEVICE", "/dev/video2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Vision.Mode != "openai" || cfg.Vision.APIKey != "sk-test" {
		t.Fatalf("expected vision override, got %+v", cfg.Vision)
	}
	if cfg.Vision.Model != "gpt-4o" {
		t.Fatalf("expected model override, got %s", cfg.Vision.Model)
	}
	if cfg.Vision.Instructions != "prefer signage" {
		t.Fatalf("expected instructions override")
	}
	if cfg.Session.PollIntervalMS != 750 {
		t.Fatalf("expected poll interval override, got %d", cfg.Session.PollIntervalMS)
	}
	if !cfg.Session.HaltOnCredentialError {
		t.Fatal("expected halt-on-credential-error override")
	}
	if cfg.Speech.Rate != 1.5 {
		t.Fatalf("expected rate override, got %f", cfg.Speech.Rate)
	}
	if len(cfg.Speech.Voices) != 2 || cfg.Speech.Voices[1] != "en-GB" {
		t.Fatalf("expected voices override, got %v", cfg.Speech.Voices)
	}
	if cfg.Capture.Camera.Device != "/dev/video2" {
		t.Fatalf("expected camera device override, got %s", cfg.Capture.Camera.Device)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad speech rate", func(c *Config) { c.Speech.Rate = 3.0 }},
		{"zero poll interval", func(c *Config) { c.Session.PollIntervalMS = 0 }},
		{"bad vision mode", func(c *Config) { c.Vision.Mode = "llava" }},
		{"empty record formats", func(c *Config) { c.Record.Formats = nil }},
		{"exec speech without command", func(c *Config) { c.Speech.Mode = "exec"; c.Speech.Command = "" }},
		{"bad retention mode", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
