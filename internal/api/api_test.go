package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/satindergrewal/aura/internal/audio"
	"github.com/satindergrewal/aura/internal/output"
	"github.com/satindergrewal/aura/internal/studio"
	"github.com/satindergrewal/aura/internal/wav"
)

type nopDevice struct{}

func (nopDevice) Start(output.Renderer) error { return nil }
func (nopDevice) Suspend() error              { return nil }
func (nopDevice) Resume() error               { return nil }
func (nopDevice) Close() error                { return nil }
func (nopDevice) Name() string                { return "nop" }

func newTestRouter(t *testing.T, open func() (output.Device, error), maxUpload int64) (http.Handler, *studio.Studio) {
	t.Helper()
	if open == nil {
		open = func() (output.Device, error) { return nopDevice{}, nil }
	}
	s := studio.New(studio.Options{
		SampleRate:       audio.LiveSampleRate,
		Channels:         audio.LiveChannels,
		Open:             open,
		Settings:         studio.DefaultSettings(),
		ExportSampleRate: 8000,
	}, nil)
	t.Cleanup(func() { s.Close() })
	return NewRouter(s, Options{MaxUploadBytes: maxUpload}, nil), s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	return m
}

func upload(t *testing.T, h http.Handler, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/music", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func silentWAV(t *testing.T, frames int) []byte {
	t.Helper()
	buf, _ := audio.NewBuffer(2, frames, 44100)
	data, err := wav.Encode(buf)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// --- Basics ---

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	w := do(t, h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestMetricsExposed(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	m := decode(t, do(t, h, http.MethodGet, "/api/status", ""))
	if m["frequencies"] != "idle" || m["music"] != "idle" || m["exporting"] != false {
		t.Errorf("status = %v", m)
	}
}

// --- Tone ---

func TestSelectTone(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	w := do(t, h, http.MethodPut, "/api/tone", `{"tone":"binaural"}`)
	if w.Code != http.StatusOK || decode(t, w)["tone"] != "binaural" {
		t.Errorf("PUT /api/tone = %d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodPut, "/api/tone", `{"tone":"gamma"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown tone status = %d, want 400", w.Code)
	}
}

func TestUpdateToneClamps(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	w := do(t, h, http.MethodPatch, "/api/tone/params", `{"carrierFrequency":9000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	iso := decode(t, w)["isochronic"].(map[string]any)
	if iso["carrierFrequency"] != 1500.0 {
		t.Errorf("carrierFrequency = %v, want 1500", iso["carrierFrequency"])
	}
}

func TestPresets(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	w := do(t, h, http.MethodGet, "/api/presets", "")
	var presets []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &presets); err != nil || len(presets) != 6 {
		t.Fatalf("presets = %s (%v)", w.Body.String(), err)
	}
	if w := do(t, h, http.MethodPost, "/api/presets/solfeggio-528-isochronic", ""); w.Code != http.StatusOK {
		t.Errorf("apply preset status = %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/presets/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown preset status = %d, want 404", w.Code)
	}
}

func TestVolume(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	m := decode(t, do(t, h, http.MethodPut, "/api/volume", `{"volume":0.2,"musicVolume":4}`))
	if m["volume"] != 0.2 || m["musicVolume"] != 1.0 {
		t.Errorf("settings = %v", m)
	}
}

// --- Errors ---

func TestErrorMapping(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	if w := do(t, h, http.MethodPost, "/api/music/play", ""); w.Code != http.StatusPreconditionFailed {
		t.Errorf("play without music = %d, want 412", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/frequencies/play", ""); w.Code != http.StatusOK {
		t.Fatalf("play = %d %s", w.Code, w.Body.String())
	}
	w := do(t, h, http.MethodPost, "/api/export", `{"minutes":1}`)
	if w.Code != http.StatusConflict {
		t.Errorf("export while playing = %d, want 409", w.Code)
	}
	if msg := decode(t, w)["message"]; msg != "Stop playback before exporting." {
		t.Errorf("message = %v", msg)
	}
}

func TestEngineUnavailable(t *testing.T) {
	h, _ := newTestRouter(t, func() (output.Device, error) { return nil, output.ErrUnavailable }, 0)
	if w := do(t, h, http.MethodPost, "/api/frequencies/play", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// --- Export ---

func TestExportDownload(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	w := do(t, h, http.MethodPost, "/api/export", `{"minutes":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "aura_harmonics_isochronic_") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	hdr, err := wav.ParseHeader(w.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if hdr.DataSize != 60*8000*2 {
		t.Errorf("DataSize = %d, want %d", hdr.DataSize, 60*8000*2)
	}
}

// --- Music ---

func TestUploadMusic(t *testing.T) {
	h, s := newTestRouter(t, nil, 0)
	w := upload(t, h, "quiet.wav", "audio/wav", silentWAV(t, 4410))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", w.Code, w.Body.String())
	}
	if m := decode(t, w); m["name"] != "quiet.wav" || m["channels"] != 2.0 {
		t.Errorf("track = %v", m)
	}
	if s.Library().Current() == nil {
		t.Error("track not stored")
	}
	if w := do(t, h, http.MethodPost, "/api/music/play", `{"loop":false}`); w.Code != http.StatusOK {
		t.Errorf("play = %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/music", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	h, _ := newTestRouter(t, nil, 1024)
	tests := []struct {
		name        string
		contentType string
		data        []byte
		want        int
	}{
		{"doc.pdf", "application/pdf", []byte("%PDF-1.7 not audio"), http.StatusUnsupportedMediaType},
		{"broken.mp3", "audio/mpeg", []byte("ID3\x04\x00garbage"), http.StatusUnprocessableEntity},
		{"big.wav", "audio/wav", silentWAV(t, 4410), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		if w := upload(t, h, tt.name, tt.contentType, tt.data); w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, w.Code, tt.want, w.Body.String())
		}
	}
}

// --- Events ---

func TestEventStream(t *testing.T) {
	h, _ := newTestRouter(t, nil, 0)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	waitFor := func(prefix string) string {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed waiting for %q", prefix)
				}
				if strings.HasPrefix(l, prefix) {
					return l
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	waitFor("event: status")
	play, err := http.Post(srv.URL+"/api/frequencies/play", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	play.Body.Close()
	waitFor("event: frequencies")
	if data := waitFor("data: "); !strings.Contains(data, `"state":"playing"`) {
		t.Errorf("event data = %s", data)
	}
}
