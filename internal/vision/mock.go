package vision

import (
	"context"
	"fmt"
	"time"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Recognize(ctx context.Context, image []byte, _ string) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return Result{Text: fmt.Sprintf("[mock detection bytes=%d]", len(image))}, nil
}
