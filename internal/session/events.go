package session

import (
	"encoding/json"
	"log/slog"

	"github.com/lectorlabs/lector-core/internal/bus"
	"github.com/lectorlabs/lector-core/internal/protocol"
)

// EventSink receives session lifecycle events for observers.
type EventSink interface {
	SessionState(st protocol.SessionState)
	Detection(d protocol.Detection)
	Announcement(a protocol.Announcement)
	RecordingArtifact(ra protocol.RecordingArtifact)
	SessionError(e protocol.SessionError)
}

// BusSink publishes session events on the NATS bus.
type BusSink struct {
	bus *bus.Client
	log *slog.Logger
}

func NewBusSink(busClient *bus.Client, log *slog.Logger) *BusSink {
	return &BusSink{bus: busClient, log: log.With(slog.String("component", "event-sink"))}
}

func (s *BusSink) publish(subject string, msg any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn("failed to marshal event", slog.String("subject", subject), slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.log.Warn("failed to publish event", slog.String("subject", subject), slogError(err))
	}
}

func (s *BusSink) SessionState(st protocol.SessionState) {
	s.publish(protocol.SubjectSessionState, st)
}

func (s *BusSink) Detection(d protocol.Detection) {
	s.publish(protocol.SubjectDetection, d)
}

func (s *BusSink) Announcement(a protocol.Announcement) {
	s.publish(protocol.SubjectAnnouncement, a)
}

func (s *BusSink) RecordingArtifact(ra protocol.RecordingArtifact) {
	s.publish(protocol.SubjectRecordingArtifact, ra)
}

func (s *BusSink) SessionError(e protocol.SessionError) {
	s.publish(protocol.SubjectError, e)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) SessionState(protocol.SessionState)           {}
func (NopSink) Detection(protocol.Detection)                 {}
func (NopSink) Announcement(protocol.Announcement)           {}
func (NopSink) RecordingArtifact(protocol.RecordingArtifact) {}
func (NopSink) SessionError(protocol.SessionError)           {}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
