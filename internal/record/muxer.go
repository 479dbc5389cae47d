package record

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/lectorlabs/lector-core/internal/config"
)

// Muxer writes accumulated MJPEG chunks into a video container.
type Muxer interface {
	Supports(format config.RecordFormat) bool
	Mux(ctx context.Context, format config.RecordFormat, chunks [][]byte, path string) error
}

// rawMuxer concatenates JPEG frames into a bare MJPEG file. Always
// available, so it serves as the last entry of the preference list.
type rawMuxer struct{}

func NewRawMuxer() Muxer { return rawMuxer{} }

func (rawMuxer) Supports(format config.RecordFormat) bool {
	return format.Container == "mjpeg" && format.Codec == "mjpeg"
}

func (rawMuxer) Mux(_ context.Context, _ config.RecordFormat, chunks [][]byte, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	defer file.Close()
	for _, chunk := range chunks {
		if _, err := file.Write(chunk); err != nil {
			return fmt.Errorf("write recording chunk: %w", err)
		}
	}
	return nil
}

// execMuxer shells out to an encoder binary to remux the MJPEG stream
// into the requested container. Supported containers are probed once
// from the binary's muxer listing.
type execMuxer struct {
	cmd []string

	probeOnce sync.Once
	muxers    map[string]struct{}
	probeErr  error
}

func NewExecMuxer(command string) (Muxer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse muxer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("muxer command empty")
	}
	return &execMuxer{cmd: args}, nil
}

func (m *execMuxer) probe() {
	m.muxers = make(map[string]struct{})
	args := append(append([]string{}, m.cmd[1:]...), "-hide_banner", "-muxers")
	out, err := exec.Command(m.cmd[0], args...).Output()
	if err != nil {
		m.probeErr = fmt.Errorf("probe muxers: %w", err)
		return
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		// listing lines look like: " E  matroska   Matroska"
		if len(fields) >= 2 && fields[0] == "E" {
			for _, name := range strings.Split(fields[1], ",") {
				m.muxers[name] = struct{}{}
			}
		}
	}
}

func (m *execMuxer) Supports(format config.RecordFormat) bool {
	m.probeOnce.Do(m.probe)
	if m.probeErr != nil {
		return false
	}
	_, ok := m.muxers[format.Container]
	return ok
}

func (m *execMuxer) Mux(ctx context.Context, format config.RecordFormat, chunks [][]byte, path string) error {
	var input bytes.Buffer
	for _, chunk := range chunks {
		input.Write(chunk)
	}

	codecArgs := []string{"-c:v", "copy"}
	if format.Codec != "" && format.Codec != "mjpeg" {
		codecArgs = []string{"-c:v", format.Codec}
	}

	args := append([]string{}, m.cmd[1:]...)
	args = append(args,
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "mjpeg",
		"-i", "-",
	)
	args = append(args, codecArgs...)
	args = append(args, "-f", format.Container, path)

	cmd := exec.CommandContext(ctx, m.cmd[0], args...)
	cmd.Stdin = &input
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mux recording: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
