package capture

import (
	"context"
	"sync"
	"time"
)

// MockSource is an in-memory source driven by Push; tests use it in
// place of a live encoder process.
type MockSource struct {
	input InputType

	mu     sync.Mutex
	latest Frame
	has    bool
	seq    int
	subs   map[<-chan Frame]chan Frame

	done     chan struct{}
	doneOnce sync.Once
	err      error

	stopCount int
}

func NewMockSource(input InputType) *MockSource {
	return &MockSource{
		input: input,
		done:  make(chan struct{}),
		subs:  make(map[<-chan Frame]chan Frame),
	}
}

func (s *MockSource) Type() InputType { return s.input }

// Push injects a frame as if it had been captured from the stream.
func (s *MockSource) Push(data []byte) {
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

// Terminate simulates out-of-band stream loss, e.g. revoked screen share.
func (s *MockSource) Terminate(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		for key, ch := range s.subs {
			close(ch)
			delete(s.subs, key)
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *MockSource) Latest() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

func (s *MockSource) Subscribe() <-chan Frame {
	ch := make(chan Frame, 16)
	s.mu.Lock()
	s.subs[ch] = ch
	s.mu.Unlock()
	return ch
}

func (s *MockSource) Unsubscribe(ch <-chan Frame) {
	s.mu.Lock()
	if sendCh, ok := s.subs[ch]; ok {
		close(sendCh)
		delete(s.subs, ch)
	}
	s.mu.Unlock()
}

func (s *MockSource) Done() <-chan struct{} { return s.done }

func (s *MockSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *MockSource) Stop() error {
	s.mu.Lock()
	s.stopCount++
	s.mu.Unlock()
	s.Terminate(nil)
	return nil
}

// StopCount reports how many times Stop was called.
func (s *MockSource) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCount
}

// MockOpener hands out pre-built sources and records open calls.
type MockOpener struct {
	mu      sync.Mutex
	next    map[InputType]*MockSource
	openErr error
	opened  []InputType
}

func NewMockOpener() *MockOpener {
	return &MockOpener{next: make(map[InputType]*MockSource)}
}

func (o *MockOpener) SetSource(input InputType, s *MockSource) {
	o.mu.Lock()
	o.next[input] = s
	o.mu.Unlock()
}

func (o *MockOpener) FailWith(err error) {
	o.mu.Lock()
	o.openErr = err
	o.mu.Unlock()
}

func (o *MockOpener) Opened() []InputType {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]InputType(nil), o.opened...)
}

func (o *MockOpener) Open(_ context.Context, input InputType) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	o.opened = append(o.opened, input)
	if s, ok := o.next[input]; ok {
		return s, nil
	}
	s := NewMockSource(input)
	o.next[input] = s
	return s, nil
}
