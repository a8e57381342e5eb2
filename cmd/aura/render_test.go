package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/config"
	"github.com/satindergrewal/aura/internal/tone"
	"github.com/satindergrewal/aura/internal/wav"
)

func TestRenderFlagsVariant(t *testing.T) {
	cfg := config.Load()
	tests := []struct {
		args []string
		want tone.Variant
	}{
		{[]string{"-tone", "binaural", "-base", "200", "-beat", "10"}, tone.Binaural{BaseHz: 200, BeatHz: 10}},
		{[]string{"-tone", "monaural", "-f1", "100", "-f2", "110"}, tone.Monaural{FrequencyOneHz: 100, FrequencyTwoHz: 110}},
		{[]string{"-tone", "isochronic"}, tone.Defaults(tone.KindIsochronic)},
		// flags for another kind are ignored
		{[]string{"-tone", "binaural", "-carrier", "300"}, tone.Defaults(tone.KindBinaural)},
	}
	for _, tt := range tests {
		f, set, err := parseRenderFlags(cfg, tt.args)
		if err != nil {
			t.Fatalf("parse %v: %v", tt.args, err)
		}
		got, err := f.variant(set)
		if err != nil {
			t.Fatalf("variant %v: %v", tt.args, err)
		}
		if got != tt.want {
			t.Errorf("variant(%v) = %+v, want %+v", tt.args, got, tt.want)
		}
	}

	f, set, _ := parseRenderFlags(cfg, []string{"-tone", "gamma"})
	if _, err := f.variant(set); err == nil {
		t.Error("unknown tone should fail")
	}
}

func TestRunRenderWritesWAV(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.wav")
	args := []string{"-tone", "binaural", "-seconds", "0.5", "-sample-rate", "8000", "-out", out}
	if err := runRender(context.Background(), config.Load(), args, zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := wav.ParseHeader(data)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Channels != 2 || hdr.SampleRate != 8000 || hdr.DataSize != 4000*2*2 {
		t.Errorf("header = %+v", hdr)
	}
}
