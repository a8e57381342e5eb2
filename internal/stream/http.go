package stream

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/audio"
	"github.com/satindergrewal/aura/internal/wav"
)

// HTTPHandler serves the live output as an open-ended WAV stream. The header
// advertises the largest data size so players keep reading until the
// connection closes.
type HTTPHandler struct {
	broadcaster *Broadcaster
	sampleRate  int
	channels    int
	logger      *zap.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster, sampleRate, channels int, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{broadcaster: b, sampleRate: sampleRate, channels: channels, logger: logger}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	header, err := wav.StreamHeader(h.sampleRate, h.channels)
	if err != nil {
		http.Error(w, "stream header failed", http.StatusInternalServerError)
		return
	}

	listener := h.broadcaster.Subscribe(TransportHTTP)
	defer h.broadcaster.Unsubscribe(listener)

	h.logger.Info("HTTP listener connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("listeners", h.broadcaster.ListenerCount()))
	defer h.logger.Info("HTTP listener disconnected", zap.String("remote", r.RemoteAddr))

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(header); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
