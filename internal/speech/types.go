package speech

import "context"

// SynthRequest contains parameters to synthesize one utterance.
type SynthRequest struct {
	Text  string
	Voice string
	Rate  float64
}

// SynthChunk contains PCM data.
type SynthChunk struct {
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}
