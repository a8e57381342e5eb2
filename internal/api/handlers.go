package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/engine"
	"github.com/satindergrewal/aura/internal/music"
	"github.com/satindergrewal/aura/internal/render"
	"github.com/satindergrewal/aura/internal/studio"
	"github.com/satindergrewal/aura/internal/tone"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and a user-facing message.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var de *music.DecodeError
	switch {
	case errors.Is(err, studio.ErrExportInProgress), errors.Is(err, studio.ErrPlaybackActive),
		errors.Is(err, studio.ErrMusicLoading):
		status = http.StatusConflict
	case errors.As(err, &de):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, studio.ErrNotAudio):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, engine.ErrEngineUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrNoMusic):
		status = http.StatusPreconditionFailed
	case errors.Is(err, studio.ErrUnknownPreset):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]any{
		"error":   err.Error(),
		"message": studio.UserMessage(err),
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg, "message": msg})
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Status handles GET /api/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.studio.Status())
}

// Settings handles GET /api/settings.
func (h *Handlers) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"settings": h.studio.Settings(),
		"ranges":   tone.Ranges,
	})
}

// SetVolume handles PUT /api/volume. Absent fields are left unchanged.
func (h *Handlers) SetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume            *float64 `json:"volume"`
		MusicVolume       *float64 `json:"musicVolume"`
		FrequenciesVolume *float64 `json:"frequenciesVolume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	settings := h.studio.Settings()
	if req.Volume != nil {
		settings = h.studio.SetVolume(*req.Volume)
	}
	if req.MusicVolume != nil {
		settings = h.studio.SetMusicVolume(*req.MusicVolume)
	}
	if req.FrequenciesVolume != nil {
		settings = h.studio.SetFrequenciesVolume(*req.FrequenciesVolume)
	}
	writeJSON(w, http.StatusOK, settings)
}

// SelectTone handles PUT /api/tone.
func (h *Handlers) SelectTone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tone tone.Kind `json:"tone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "unknown tone")
		return
	}
	settings, err := h.studio.SelectTone(req.Tone)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateTone handles PATCH /api/tone/params.
func (h *Handlers) UpdateTone(w http.ResponseWriter, r *http.Request) {
	var patch tone.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		badRequest(w, "invalid parameters")
		return
	}
	settings, err := h.studio.UpdateTone(patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Presets handles GET /api/presets.
func (h *Handlers) Presets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tone.Presets())
}

// ApplyPreset handles POST /api/presets/{presetId}.
func (h *Handlers) ApplyPreset(w http.ResponseWriter, r *http.Request) {
	p, err := h.studio.ApplyPreset(chi.URLParam(r, "presetId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preset": p, "settings": h.studio.Settings()})
}

// PlayFrequencies handles POST /api/frequencies/play.
func (h *Handlers) PlayFrequencies(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.PlayFrequencies(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.studio.Status())
}

// StopFrequencies handles POST /api/frequencies/stop.
func (h *Handlers) StopFrequencies(w http.ResponseWriter, r *http.Request) {
	h.studio.StopFrequencies()
	writeJSON(w, http.StatusOK, h.studio.Status())
}

// UploadMusic handles POST /api/music with a multipart "file" field.
func (h *Handlers) UploadMusic(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"error":   err.Error(),
				"message": fmt.Sprintf("Files up to %d MB are accepted.", h.maxUpload>>20),
			})
			return
		}
		badRequest(w, "expected a multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file field")
		return
	}
	defer file.Close()
	if header.Size > h.maxUpload {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error":   "file too large",
			"message": fmt.Sprintf("Files up to %d MB are accepted.", h.maxUpload>>20),
		})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, "could not read upload")
		return
	}

	track, err := h.studio.LoadMusic(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

// ClearMusic handles DELETE /api/music.
func (h *Handlers) ClearMusic(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.ClearMusic(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlayMusic handles POST /api/music/play. The track loops unless
// {"loop": false} is sent.
func (h *Handlers) PlayMusic(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Loop bool `json:"loop"`
	}{Loop: true}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request")
			return
		}
	}
	if err := h.studio.PlayMusic(req.Loop); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.studio.Status())
}

// StopMusic handles POST /api/music/stop.
func (h *Handlers) StopMusic(w http.ResponseWriter, r *http.Request) {
	h.studio.StopMusic()
	writeJSON(w, http.StatusOK, h.studio.Status())
}

// StopAll handles POST /api/stop.
func (h *Handlers) StopAll(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.StopAll(); err != nil {
		h.logger.Warn("Output suspend failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, h.studio.Status())
}

// SetExportOptions handles PUT /api/export/options.
func (h *Handlers) SetExportOptions(w http.ResponseWriter, r *http.Request) {
	current := h.studio.Settings()
	req := struct {
		Minutes        int                   `json:"minutes"`
		DurationSource render.DurationSource `json:"durationSource"`
	}{current.ExportMinutes, current.DurationSource}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid export options")
		return
	}
	writeJSON(w, http.StatusOK, h.studio.SetExportOptions(req.Minutes, req.DurationSource))
}

// Export handles POST /api/export and responds with the WAV file.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	var req studio.ExportRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid export request")
			return
		}
	}
	res, err := h.studio.Export(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(res.Size))
	w.Header().Set("X-Job-Id", res.JobID)
	w.Write(res.Data)
}
