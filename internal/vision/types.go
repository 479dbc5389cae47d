package vision

import (
	"context"
	"strings"
)

// Result captures recognizer output. An empty Text means no text was
// visible in the frame; that is a success, not an error.
type Result struct {
	Text string
}

// Recognizer abstracts remote vision-language backends.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, instructions string) (Result, error)
}

const basePrompt = "Extract all text visible in this image. " +
	"If there are multiple text blocks, concatenate them with spaces. " +
	"Respond with the extracted text only. " +
	"If no text is visible, respond with an empty string."

// BuildPrompt appends optional free-text instructions to the base prompt.
func BuildPrompt(instructions string) string {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return basePrompt
	}
	return basePrompt + " " + instructions
}
