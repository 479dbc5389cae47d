package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lectorlabs/lector-core/internal/config"
)

// FFMPEGOpener spawns an external encoder process that emits an MJPEG
// stream on stdout and slices it into individual frames.
type FFMPEGOpener struct {
	cfg config.CaptureConfig
}

func NewFFMPEGOpener(cfg config.CaptureConfig) *FFMPEGOpener {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	return &FFMPEGOpener{cfg: cfg}
}

func (o *FFMPEGOpener) Open(ctx context.Context, input InputType) (Source, error) {
	var in config.CaptureInput
	switch input {
	case InputCamera:
		in = o.cfg.Camera
	case InputScreen:
		in = o.cfg.Screen
	default:
		return nil, fmt.Errorf("cannot open input type %q", input)
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", in.Format,
		"-framerate", strconv.Itoa(o.cfg.FrameRate),
	}
	if o.cfg.Width > 0 && o.cfg.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", o.cfg.Width, o.cfg.Height))
	}
	args = append(args,
		"-i", in.Device,
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	)

	cmd := exec.CommandContext(ctx, o.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Permission and device failures show up as an immediate exit.
	select {
	case err := <-waitErr:
		stdout.Close()
		msg := trimmed(stderr.Bytes())
		if deniedOutput(msg) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
		}
		if err != nil {
			return nil, fmt.Errorf("capture process exited before streaming: %w: %s", err, msg)
		}
		return nil, errors.New("capture process exited before streaming")
	case <-time.After(250 * time.Millisecond):
	}

	s := &ffmpegSource{
		input:   input,
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		done:    make(chan struct{}),
		subs:    make(map[<-chan Frame]chan Frame),
	}
	go s.readFrames()
	return s, nil
}

type ffmpegSource struct {
	input   InputType
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	mu     sync.Mutex
	latest Frame
	has    bool
	seq    int
	subs   map[<-chan Frame]chan Frame

	done     chan struct{}
	doneOnce sync.Once
	err      error

	stopOnce sync.Once
	stopErr  error
	stopped  bool
}

func (s *ffmpegSource) Type() InputType { return s.input }

func (s *ffmpegSource) readFrames() {
	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, 64*1024), 32*1024*1024)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		data := append([]byte(nil), scanner.Bytes()...)
		s.publish(data)
	}

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	var cause error
	if err := scanner.Err(); err != nil && !stopped {
		cause = err
	}
	if !stopped && cause == nil {
		cause = errors.New("capture stream ended")
		if s.stderr.Len() > 0 {
			cause = fmt.Errorf("capture stream ended: %s", trimmed(s.stderr.Bytes()))
		}
	}
	s.finish(cause)
}

func (s *ffmpegSource) publish(data []byte) {
	s.mu.Lock()
	s.seq++
	frame := Frame{Data: data, Seq: s.seq, CapturedAt: time.Now()}
	s.latest = frame
	s.has = true
	for _, ch := range s.subs {
		select {
		case ch <- frame:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *ffmpegSource) finish(cause error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = cause
		for key, ch := range s.subs {
			close(ch)
			delete(s.subs, key)
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *ffmpegSource) Latest() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

func (s *ffmpegSource) Subscribe() <-chan Frame {
	ch := make(chan Frame, 16)
	s.mu.Lock()
	s.subs[ch] = ch
	s.mu.Unlock()
	return ch
}

func (s *ffmpegSource) Unsubscribe(ch <-chan Frame) {
	s.mu.Lock()
	if sendCh, ok := s.subs[ch]; ok {
		close(sendCh)
		delete(s.subs, ch)
	}
	s.mu.Unlock()
}

func (s *ffmpegSource) Done() <-chan struct{} { return s.done }

func (s *ffmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ffmpegSource) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}
		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}
		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}
		s.finish(nil)
	})
	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(b []byte) string {
	return string(bytes.TrimSpace(b))
}

// deniedOutput reports whether encoder stderr describes an access
// refusal rather than a missing binary or bad device.
func deniedOutput(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "permission denied") ||
		strings.Contains(s, "operation not permitted") ||
		strings.Contains(s, "not authorized")
}

// splitJPEG is a bufio.SplitFunc that slices an MJPEG byte stream into
// complete JPEG images using the SOI/EOI markers.
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	soi := bytes.Index(data, []byte{0xFF, 0xD8})
	if soi < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep the trailing byte in case it is the first half of a marker.
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}
	eoi := bytes.Index(data[soi+2:], []byte{0xFF, 0xD9})
	if eoi < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return soi, nil, nil
	}
	end := soi + 2 + eoi + 2
	return end, data[soi:end], nil
}
