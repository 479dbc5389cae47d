package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lectorlabs/lector-core/internal/config"
)

type openaiRecognizer struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewOpenAIRecognizer builds a recognizer against an OpenAI-compatible
// chat completions endpoint. A zero request timeout means none: a hung
// call only delays the caller's next poll cycle.
func NewOpenAIRecognizer(cfg config.VisionConfig) Recognizer {
	client := &http.Client{}
	if cfg.RequestTimeoutMS > 0 {
		client.Timeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	}
	return &openaiRecognizer{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   client,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *openaiRecognizer) Recognize(ctx context.Context, image []byte, instructions string) (Result, error) {
	if strings.TrimSpace(r.apiKey) == "" {
		return Result{}, credentialError("vision API key is not configured")
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	payload := chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: BuildPrompt(instructions)},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, upstreamError("encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, upstreamError("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return Result{}, upstreamError("vision request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Result{}, credentialError(fmt.Sprintf("vision service rejected credentials (%s)", resp.Status))
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, upstreamError(fmt.Sprintf("vision service returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))), nil)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, upstreamError("decode response", err)
	}
	if decoded.Error != nil {
		return Result{}, upstreamError(decoded.Error.Message, nil)
	}
	if len(decoded.Choices) == 0 {
		return Result{}, upstreamError("vision service returned no choices", nil)
	}

	return Result{Text: strings.TrimSpace(decoded.Choices[0].Message.Content)}, nil
}
