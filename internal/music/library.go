package music

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/aura/internal/audio"
)

// Track is a decoded music file. Buffer is read-only once the track is
// published to a Library.
type Track struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	MIME       string        `json:"mime"`
	Size       int           `json:"size"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	Buffer     *audio.Buffer `json:"-"`
}

// NewTrack wraps a decoded buffer with metadata and a fresh id.
func NewTrack(name, mime string, size int, buf *audio.Buffer) *Track {
	return &Track{
		ID:         uuid.New().String(),
		Name:       name,
		MIME:       mime,
		Size:       size,
		Duration:   buf.Duration(),
		SampleRate: buf.SampleRate,
		Channels:   buf.NumChannels(),
		Buffer:     buf,
	}
}

// Library holds the current track. Readers take a lease with Acquire;
// Replace and Clear wait until every lease on the old track is released.
type Library struct {
	mu      sync.Mutex
	track   *Track
	readers int
	idle    chan struct{} // closed when readers drops to zero
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{}
}

// Current returns the current track, or nil. The caller must not read the
// buffer without a lease.
func (l *Library) Current() *Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.track
}

// Readers returns the number of outstanding leases.
func (l *Library) Readers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers
}

// Acquire leases the current track. The returned release func must be
// called when the reader is done; calling it more than once is harmless.
// ok is false when the library is empty.
func (l *Library) Acquire() (t *Track, release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.track == nil {
		return nil, func() {}, false
	}
	if l.readers == 0 {
		l.idle = make(chan struct{})
	}
	l.readers++
	var once sync.Once
	return l.track, func() { once.Do(l.release) }, true
}

func (l *Library) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readers--
	if l.readers == 0 {
		close(l.idle)
	}
}

// Replace publishes t once every lease on the previous track is released.
// It returns ctx.Err() if ctx ends first, leaving the old track in place.
func (l *Library) Replace(ctx context.Context, t *Track) error {
	for {
		l.mu.Lock()
		if l.readers == 0 {
			l.track = t
			l.mu.Unlock()
			return nil
		}
		idle := l.idle
		l.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Clear removes the current track, waiting like Replace.
func (l *Library) Clear(ctx context.Context) error {
	return l.Replace(ctx, nil)
}
