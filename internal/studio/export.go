package studio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/engine"
	"github.com/satindergrewal/aura/internal/metrics"
	"github.com/satindergrewal/aura/internal/render"
	"github.com/satindergrewal/aura/internal/tone"
	"github.com/satindergrewal/aura/internal/wav"
)

// WAVMIME is the MIME type of exported files.
const WAVMIME = "audio/wav"

// Export status messages.
const (
	StatusRendering = "Rendering..."
	StatusEncoding  = "Encoding WAV..."
	StatusComplete  = "Export complete"
)

// ExportRequest overrides the saved settings for one export. Zero and nil
// fields use the settings.
type ExportRequest struct {
	Minutes           int                    `json:"minutes,omitempty"`
	WithMusic         bool                   `json:"withMusic"`
	DurationSource    *render.DurationSource `json:"durationSource,omitempty"`
	MusicVolume       *float64               `json:"musicVolume,omitempty"`
	FrequenciesVolume *float64               `json:"frequenciesVolume,omitempty"`
}

// ExportResult is a finished export.
type ExportResult struct {
	JobID    string        `json:"jobId"`
	Filename string        `json:"filename"`
	MIME     string        `json:"mime"`
	Duration time.Duration `json:"duration"`
	Size     int           `json:"size"`
	Data     []byte        `json:"-"`
}

// Export renders the selected tone, with the current track under it when
// asked, and encodes it as WAV. It fails fast with ErrPlaybackActive while
// anything plays and with ErrExportInProgress while another export runs.
func (s *Studio) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	s.mu.Lock()
	if s.exporting {
		s.mu.Unlock()
		return nil, ErrExportInProgress
	}
	if s.mixer.Frequencies().State() == engine.StatePlaying || s.mixer.Music().State() == engine.StatePlaying {
		s.mu.Unlock()
		return nil, ErrPlaybackActive
	}
	s.exporting = true
	settings := s.settings
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.exporting = false
		s.mu.Unlock()
	}()

	id := uuid.New().String()
	logger := s.logger.With(zap.String("job", id))
	res, err := s.export(ctx, id, settings, req)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("failed").Inc()
		logger.Error("Export failed", zap.Error(err))
		s.events.publish(Event{Target: TargetExport, State: "failed", Message: UserMessage(err)})
		return nil, err
	}
	metrics.ExportsTotal.WithLabelValues("ok").Inc()
	logger.Info("Export complete",
		zap.String("filename", res.Filename),
		zap.Int("bytes", res.Size),
		zap.Duration("duration", res.Duration))
	s.events.publish(Event{Target: TargetExport, State: "complete", Message: StatusComplete})
	return res, nil
}

func (s *Studio) export(ctx context.Context, id string, settings Settings, req ExportRequest) (*ExportResult, error) {
	minutes := settings.ExportMinutes
	if req.Minutes != 0 {
		minutes = ClampMinutes(req.Minutes)
	}
	job := render.Job{
		Variant:           settings.Variant(),
		Volume:            settings.Volume,
		FrequenciesVolume: settings.FrequenciesVolume,
		MusicVolume:       settings.MusicVolume,
		Seconds:           float64(minutes * 60),
		DurationSource:    render.Explicit,
		SampleRate:        s.exportSR,
	}
	if req.FrequenciesVolume != nil {
		job.FrequenciesVolume = *req.FrequenciesVolume
	}

	if req.WithMusic {
		track, release, ok := s.lib.Acquire()
		if !ok {
			return nil, engine.ErrNoMusic
		}
		defer release()
		job.Music = track.Buffer
		job.DurationSource = settings.DurationSource
		if req.DurationSource != nil {
			job.DurationSource = *req.DurationSource
		}
		if req.MusicVolume != nil {
			job.MusicVolume = *req.MusicVolume
		}
	}

	s.events.publish(Event{Target: TargetExport, State: "rendering", Message: StatusRendering})
	buf, err := s.renderer.Render(ctx, job)
	if err != nil {
		return nil, err
	}

	s.events.publish(Event{Target: TargetExport, State: "encoding", Message: StatusEncoding})
	data, err := wav.Encode(buf)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return &ExportResult{
		JobID:    id,
		Filename: Filename(job.Variant.Kind(), req.WithMusic, time.Now()),
		MIME:     WAVMIME,
		Duration: buf.Duration(),
		Size:     len(data),
		Data:     data,
	}, nil
}

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// Filename names an export:
// aura_harmonics_<kind>[_with_music]_<UTC timestamp>.wav, with ':' and '.'
// in the timestamp replaced by '-'.
func Filename(k tone.Kind, withMusic bool, at time.Time) string {
	var b strings.Builder
	b.WriteString("aura_harmonics_")
	b.WriteString(k.String())
	if withMusic {
		b.WriteString("_with_music")
	}
	b.WriteByte('_')
	b.WriteString(timestampReplacer.Replace(at.UTC().Format("2006-01-02T15:04:05.000Z07:00")))
	b.WriteString(".wav")
	return b.String()
}
