package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/aura/internal/graph"
	"github.com/satindergrewal/aura/internal/metrics"
	"github.com/satindergrewal/aura/internal/tone"
)

// Target is an independently controlled playback path.
type Target int

const (
	TargetFrequencies Target = iota
	TargetMusic
)

func (t Target) String() string {
	switch t {
	case TargetFrequencies:
		return "frequencies"
	case TargetMusic:
		return "music"
	}
	return fmt.Sprintf("Target(%d)", int(t))
}

func (t Target) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// State is the playback state of a target.
type State int

const (
	StateIdle State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ChangeFunc is called after a target changes state. It is never called with
// engine locks held.
type ChangeFunc func(Target, State)

// Session owns every node created for one playback of one target. Close
// stops and disconnects all of them and releases the music lease, so nothing
// from the session can sound or be restarted afterwards.
type Session struct {
	ID      string
	Target  Target
	Started time.Time

	voice  *tone.Voice
	source *graph.BufferSource
	lease  func()
	closed bool
}

func newSession(target Target) *Session {
	metrics.ActiveSessions.WithLabelValues(target.String()).Inc()
	return &Session{
		ID:      uuid.New().String(),
		Target:  target,
		Started: time.Now(),
	}
}

// Close is idempotent.
func (s *Session) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	if s.voice != nil {
		s.voice.Release()
	}
	if s.source != nil {
		s.source.Release()
	}
	if s.lease != nil {
		s.lease()
	}
	metrics.ActiveSessions.WithLabelValues(s.Target.String()).Dec()
}
