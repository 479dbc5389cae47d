package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lectorlabs/lector-core/internal/config"
)

func newTestRecognizer(url, key string) Recognizer {
	return NewOpenAIRecognizer(config.VisionConfig{
		Endpoint: url,
		APIKey:   key,
		Model:    "test-model",
	})
}

func TestRecognizeTrimsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Errorf("unexpected message shape: %+v", req.Messages)
		}
		if !strings.Contains(req.Messages[0].Content[0].Text, "concatenate them with spaces") {
			t.Errorf("base prompt missing: %q", req.Messages[0].Content[0].Text)
		}
		if !strings.HasPrefix(req.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,") {
			t.Errorf("expected base64 data url, got %q", req.Messages[0].Content[1].ImageURL.URL)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  HELLO WORLD \n"}},
			},
		})
	}))
	defer srv.Close()

	res, err := newTestRecognizer(srv.URL, "sk-test").Recognize(context.Background(), []byte{0xff, 0xd8}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "HELLO WORLD" {
		t.Fatalf("expected trimmed text, got %q", res.Text)
	}
}

func TestRecognizeEmptyTextIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "   "}},
			},
		})
	}))
	defer srv.Close()

	res, err := newTestRecognizer(srv.URL, "sk-test").Recognize(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "" {
		t.Fatalf("expected empty text, got %q", res.Text)
	}
}

func TestRecognizeClassifiesCredentialFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestRecognizer(srv.URL, "sk-bad").Recognize(context.Background(), nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if Classify(err) != ClassInvalidCredentials {
		t.Fatalf("expected invalid_credentials, got %s", Classify(err))
	}
}

func TestRecognizeMissingKeyIsCredentialError(t *testing.T) {
	_, err := newTestRecognizer("http://localhost:0", "").Recognize(context.Background(), nil, "")
	if Classify(err) != ClassInvalidCredentials {
		t.Fatalf("expected invalid_credentials, got %v", err)
	}
}

func TestRecognizeClassifiesUpstreamFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestRecognizer(srv.URL, "sk-test").Recognize(context.Background(), nil, "")
	if Classify(err) != ClassUpstream {
		t.Fatalf("expected upstream_error, got %v", err)
	}

	srv.Close()
	_, err = newTestRecognizer(srv.URL, "sk-test").Recognize(context.Background(), nil, "")
	if Classify(err) != ClassUpstream {
		t.Fatalf("expected upstream_error for transport failure, got %v", err)
	}
}

func TestClassifyUnknown(t *testing.T) {
	if Classify(errors.New("boom")) != ClassUnknown {
		t.Fatal("expected unknown class for plain errors")
	}
}

func TestBuildPromptAppendsInstructions(t *testing.T) {
	if got := BuildPrompt("  "); got != basePrompt {
		t.Fatalf("blank instructions should yield the base prompt, got %q", got)
	}
	got := BuildPrompt("Prefer street signs.")
	if !strings.HasSuffix(got, "Prefer street signs.") || !strings.HasPrefix(got, basePrompt) {
		t.Fatalf("unexpected prompt: %q", got)
	}
}
