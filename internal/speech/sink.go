package speech

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// Sink consumes the PCM chunks of one utterance.
type Sink interface {
	Play(ctx context.Context, chunks <-chan SynthChunk) error
}

// execPlayer pipes raw PCM into an external playback command.
type execPlayer struct {
	cmd []string
}

func NewExecPlayer(command string) (Sink, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Play(ctx context.Context, chunks <-chan SynthChunk) error {
	base := p.cmd[0]
	args := append([]string{}, p.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	for chunk := range chunks {
		if _, err := stdin.Write(chunk.PCM); err != nil {
			stdin.Close()
			cmd.Wait()
			return err
		}
	}
	stdin.Close()
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("playback command failed: %w", err)
	}
	return nil
}

// wavSink writes each utterance to a WAV file, for environments without
// an audio device.
type wavSink struct {
	dir string
}

func NewWavSink(dir string) (Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wav dir: %w", err)
	}
	return &wavSink{dir: dir}, nil
}

func (s *wavSink) Play(ctx context.Context, chunks <-chan SynthChunk) error {
	var pcm []byte
	sampleRate := 0
	channels := 0
	for chunk := range chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pcm = append(pcm, chunk.PCM...)
		sampleRate = chunk.SampleRate
		channels = chunk.Channels
	}
	if len(pcm) == 0 {
		return nil
	}

	name := fmt.Sprintf("utterance-%s.wav", time.Now().UTC().Format("20060102T150405.000"))
	file, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer file.Close()
	return writePCMToWav(file, pcm, sampleRate, channels)
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
