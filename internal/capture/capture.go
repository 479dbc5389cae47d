package capture

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied marks start failures caused by refused device or
// display access, as opposed to missing binaries or bad devices.
var ErrPermissionDenied = errors.New("capture permission denied")

// InputType tags which origin owns the live stream. Exactly one of
// camera or screen may be active at a time.
type InputType string

const (
	InputNone   InputType = "none"
	InputCamera InputType = "camera"
	InputScreen InputType = "screen"
)

// Frame is one encoded still image taken from the live stream.
type Frame struct {
	Data       []byte
	Seq        int
	CapturedAt time.Time
}

// Source is a live capture stream. The session manager owns the source
// exclusively; the poller and recorder only borrow read access through
// Latest and Subscribe and must never call Stop themselves.
type Source interface {
	Type() InputType

	// Latest returns a snapshot of the most recent frame, if any.
	Latest() (Frame, bool)

	// Subscribe registers a listener for the raw frame stream. Slow
	// listeners miss frames rather than blocking capture.
	Subscribe() <-chan Frame
	Unsubscribe(<-chan Frame)

	// Done is closed when the stream terminates out-of-band, for
	// example when the user revokes screen sharing and the encoder
	// process exits. Err reports the cause after Done is closed.
	Done() <-chan struct{}
	Err() error

	// Stop releases the stream. Idempotent.
	Stop() error
}

// Opener acquires camera or screen sources.
type Opener interface {
	Open(ctx context.Context, input InputType) (Source, error)
}
