package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/api"
	"github.com/satindergrewal/aura/internal/audio"
	"github.com/satindergrewal/aura/internal/config"
	"github.com/satindergrewal/aura/internal/engine"
	"github.com/satindergrewal/aura/internal/music"
	"github.com/satindergrewal/aura/internal/output"
	"github.com/satindergrewal/aura/internal/render"
	"github.com/satindergrewal/aura/internal/stream"
	"github.com/satindergrewal/aura/internal/studio"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) > 1 && os.Args[1] == "render" {
		if err := runRender(ctx, cfg, os.Args[2:], logger.Named("render")); err != nil {
			logger.Error("Render failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("aura starting up",
		zap.String("output", cfg.Output),
		zap.Int("sampleRate", cfg.LiveSampleRate),
		zap.Int("port", cfg.Port))

	src, err := render.ParseDurationSource(cfg.ExportDurationSource)
	if err != nil {
		logger.Warn("Ignoring export duration source", zap.Error(err))
	}
	settings := studio.DefaultSettings()
	settings.Volume = cfg.Volume
	settings.MusicVolume = cfg.MusicVolume
	settings.FrequenciesVolume = cfg.FrequenciesVolume
	settings.ExportMinutes = cfg.ExportMinutes
	settings.DurationSource = src

	opts := output.Options{
		SampleRate:   cfg.LiveSampleRate,
		Channels:     audio.LiveChannels,
		BufferFrames: cfg.DeviceBuffer,
	}
	routes := api.Options{MaxUploadBytes: cfg.MaxUploadBytes()}

	var open engine.Opener
	if cfg.Output == output.KindStream {
		// The stream device exists up front so listeners can connect
		// before anything plays.
		dev := output.NewStream(opts, logger.Named("output"))
		broadcaster := stream.NewBroadcaster()
		go broadcaster.Run(ctx, dev.Frames())

		routes.Stream = stream.NewHTTPHandler(broadcaster, opts.SampleRate, opts.Channels, logger.Named("stream"))
		routes.Offer = stream.NewWebRTCHandler(broadcaster, opts.SampleRate, opts.Channels, logger.Named("webrtc"))
		open = func() (output.Device, error) { return dev, nil }
	} else {
		open = func() (output.Device, error) {
			return output.Open(cfg.Output, opts, logger.Named("output"))
		}
	}

	s := studio.New(studio.Options{
		SampleRate:       opts.SampleRate,
		Channels:         opts.Channels,
		Open:             open,
		Decoder:          music.NewDecoder(cfg.FFmpeg, logger.Named("decode")),
		Renderer:         render.New(logger.Named("render")),
		Settings:         settings,
		ExportSampleRate: cfg.ExportSampleRate,
	}, logger.Named("studio"))
	defer s.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(s, routes, logger.Named("http")),
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown incomplete", zap.Error(err))
		}
	}()

	logger.Info("Listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
