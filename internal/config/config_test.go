package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	envVars := []string{
		"AURA_PORT", "AURA_MAX_UPLOAD_MB", "AURA_LOG_DEV",
		"AURA_OUTPUT", "AURA_LIVE_SAMPLE_RATE", "AURA_DEVICE_BUFFER",
		"AURA_VOLUME", "AURA_MUSIC_VOLUME", "AURA_FREQUENCIES_VOLUME",
		"AURA_EXPORT_SAMPLE_RATE", "AURA_EXPORT_MINUTES",
		"AURA_EXPORT_DURATION_SOURCE", "AURA_FFMPEG",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.MaxUploadMB != 100 {
		t.Errorf("MaxUploadMB = %d, want 100", cfg.MaxUploadMB)
	}
	if cfg.LogDev {
		t.Error("LogDev = true, want false")
	}
	if cfg.Output != "stream" {
		t.Errorf("Output = %q, want 'stream'", cfg.Output)
	}
	if cfg.LiveSampleRate != 48000 {
		t.Errorf("LiveSampleRate = %d, want 48000", cfg.LiveSampleRate)
	}
	if cfg.DeviceBuffer != 1024 {
		t.Errorf("DeviceBuffer = %d, want 1024", cfg.DeviceBuffer)
	}
	if cfg.Volume != 0.5 {
		t.Errorf("Volume = %f, want 0.5", cfg.Volume)
	}
	if cfg.MusicVolume != 0.7 {
		t.Errorf("MusicVolume = %f, want 0.7", cfg.MusicVolume)
	}
	if cfg.FrequenciesVolume != 0.5 {
		t.Errorf("FrequenciesVolume = %f, want 0.5", cfg.FrequenciesVolume)
	}
	if cfg.ExportSampleRate != 44100 {
		t.Errorf("ExportSampleRate = %d, want 44100", cfg.ExportSampleRate)
	}
	if cfg.ExportMinutes != 5 {
		t.Errorf("ExportMinutes = %d, want 5", cfg.ExportMinutes)
	}
	if cfg.ExportDurationSource != "explicit" {
		t.Errorf("ExportDurationSource = %q, want 'explicit'", cfg.ExportDurationSource)
	}
	if cfg.FFmpeg != "ffmpeg" {
		t.Errorf("FFmpeg = %q, want 'ffmpeg'", cfg.FFmpeg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AURA_PORT", "3000")
	t.Setenv("AURA_MAX_UPLOAD_MB", "20")
	t.Setenv("AURA_LOG_DEV", "1")
	t.Setenv("AURA_OUTPUT", "portaudio")
	t.Setenv("AURA_LIVE_SAMPLE_RATE", "44100")
	t.Setenv("AURA_DEVICE_BUFFER", "256")
	t.Setenv("AURA_VOLUME", "0.8")
	t.Setenv("AURA_MUSIC_VOLUME", "0.3")
	t.Setenv("AURA_FREQUENCIES_VOLUME", "0.9")
	t.Setenv("AURA_EXPORT_SAMPLE_RATE", "48000")
	t.Setenv("AURA_EXPORT_MINUTES", "30")
	t.Setenv("AURA_EXPORT_DURATION_SOURCE", "music")
	t.Setenv("AURA_FFMPEG", "/usr/local/bin/ffmpeg")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.MaxUploadBytes() != 20<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes(), 20<<20)
	}
	if !cfg.LogDev {
		t.Error("LogDev = false, want true")
	}
	if cfg.Output != "portaudio" {
		t.Errorf("Output = %q, want 'portaudio'", cfg.Output)
	}
	if cfg.LiveSampleRate != 44100 {
		t.Errorf("LiveSampleRate = %d, want 44100", cfg.LiveSampleRate)
	}
	if cfg.DeviceBuffer != 256 {
		t.Errorf("DeviceBuffer = %d, want 256", cfg.DeviceBuffer)
	}
	if cfg.Volume != 0.8 {
		t.Errorf("Volume = %f, want 0.8", cfg.Volume)
	}
	if cfg.MusicVolume != 0.3 {
		t.Errorf("MusicVolume = %f, want 0.3", cfg.MusicVolume)
	}
	if cfg.FrequenciesVolume != 0.9 {
		t.Errorf("FrequenciesVolume = %f, want 0.9", cfg.FrequenciesVolume)
	}
	if cfg.ExportSampleRate != 48000 {
		t.Errorf("ExportSampleRate = %d, want 48000", cfg.ExportSampleRate)
	}
	if cfg.ExportMinutes != 30 {
		t.Errorf("ExportMinutes = %d, want 30", cfg.ExportMinutes)
	}
	if cfg.ExportDurationSource != "music" {
		t.Errorf("ExportDurationSource = %q, want 'music'", cfg.ExportDurationSource)
	}
	if cfg.FFmpeg != "/usr/local/bin/ffmpeg" {
		t.Errorf("FFmpeg = %q, want env override", cfg.FFmpeg)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("AURA_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvFloatInvalidFallsBack(t *testing.T) {
	t.Setenv("AURA_VOLUME", "loud")
	cfg := Load()
	if cfg.Volume != 0.5 {
		t.Errorf("Invalid float env should fallback to default: got %f, want 0.5", cfg.Volume)
	}
}

func TestEnvStrEmpty(t *testing.T) {
	// Empty string should use fallback
	t.Setenv("AURA_OUTPUT", "")
	cfg := Load()
	if cfg.Output != "stream" {
		t.Errorf("Empty env should use fallback: got %q", cfg.Output)
	}
}
