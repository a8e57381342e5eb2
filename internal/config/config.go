package config

import (
	"os"
	"strconv"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port        int
	MaxUploadMB int
	LogDev      bool

	// Realtime output
	Output         string // stream, portaudio, oto or none
	LiveSampleRate int
	DeviceBuffer   int // frames per device callback

	// Mix levels, 0-1
	Volume            float64
	MusicVolume       float64
	FrequenciesVolume float64

	// Export
	ExportSampleRate     int
	ExportMinutes        int
	ExportDurationSource string // explicit or music

	// Decoding
	FFmpeg string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:        envInt("AURA_PORT", 8080),
		MaxUploadMB: envInt("AURA_MAX_UPLOAD_MB", 100),
		LogDev:      envInt("AURA_LOG_DEV", 0) != 0,

		Output:         envStr("AURA_OUTPUT", "stream"),
		LiveSampleRate: envInt("AURA_LIVE_SAMPLE_RATE", 48000),
		DeviceBuffer:   envInt("AURA_DEVICE_BUFFER", 1024),

		Volume:            envFloat("AURA_VOLUME", 0.5),
		MusicVolume:       envFloat("AURA_MUSIC_VOLUME", 0.7),
		FrequenciesVolume: envFloat("AURA_FREQUENCIES_VOLUME", 0.5),

		ExportSampleRate:     envInt("AURA_EXPORT_SAMPLE_RATE", 44100),
		ExportMinutes:        envInt("AURA_EXPORT_MINUTES", 5),
		ExportDurationSource: envStr("AURA_EXPORT_DURATION_SOURCE", "explicit"),

		FFmpeg: envStr("AURA_FFMPEG", "ffmpeg"),
	}
}

// MaxUploadBytes is MaxUploadMB in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
