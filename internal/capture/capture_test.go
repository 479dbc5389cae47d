package capture

import (
	"bufio"
	"bytes"
	"testing"
)

func jpeg(payload ...byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	return append(frame, 0xFF, 0xD9)
}

func TestSplitJPEGSlicesStream(t *testing.T) {
	first := jpeg(0x01, 0x02)
	second := jpeg(0x03)
	stream := append(append([]byte{0x00, 0x00}, first...), second...)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(splitJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], first) {
		t.Fatalf("first frame mismatch: %x", frames[0])
	}
	if !bytes.Equal(frames[1], second) {
		t.Fatalf("second frame mismatch: %x", frames[1])
	}
}

func TestSplitJPEGDiscardsTruncatedTail(t *testing.T) {
	stream := append(jpeg(0xAA), 0xFF, 0xD8, 0x01) // trailing frame never closes
	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(splitJPEG)

	count := 0
	for scanner.Scan() {
		count++
	}
	if count != 1 {
		t.Fatalf("expected 1 complete frame, got %d", count)
	}
}

func TestMockSourceLatestAndSubscribe(t *testing.T) {
	s := NewMockSource(InputCamera)
	if _, ok := s.Latest(); ok {
		t.Fatal("expected no frame before Push")
	}

	sub := s.Subscribe()
	s.Push([]byte{0x01})
	s.Push([]byte{0x02})

	frame, ok := s.Latest()
	if !ok || frame.Seq != 2 {
		t.Fatalf("expected latest seq 2, got %+v ok=%v", frame, ok)
	}

	got := <-sub
	if got.Seq != 1 {
		t.Fatalf("expected first subscribed frame, got seq %d", got.Seq)
	}

	s.Unsubscribe(sub)
	if _, open := <-sub; open {
		// drain the buffered second frame, channel must then be closed
		if _, open := <-sub; open {
			t.Fatal("expected subscription channel closed after Unsubscribe")
		}
	}
}

func TestMockSourceStopIsIdempotent(t *testing.T) {
	s := NewMockSource(InputScreen)
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done closed after Stop")
	}
	if s.Err() != nil {
		t.Fatalf("clean stop must not report an error, got %v", s.Err())
	}
}

func TestDeniedOutputClassification(t *testing.T) {
	cases := []struct {
		stderr string
		want   bool
	}{
		{"/dev/video0: Permission denied", true},
		{"ioctl failed: Operation not permitted", true},
		{"user not authorized to capture the display", true},
		{"No such file or directory", false},
		{"Device or resource busy", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := deniedOutput(tc.stderr); got != tc.want {
			t.Errorf("deniedOutput(%q) = %v, want %v", tc.stderr, got, tc.want)
		}
	}
}
