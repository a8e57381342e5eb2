package graph

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/satindergrewal/aura/internal/audio"
)

func newOffline(t *testing.T, channels, length int, sr float64) *OfflineContext {
	t.Helper()
	o, err := NewOfflineContext(channels, length, sr)
	if err != nil {
		t.Fatalf("NewOfflineContext: %v", err)
	}
	return o
}

func render(t *testing.T, o *OfflineContext) *audio.Buffer {
	t.Helper()
	buf, err := o.StartRendering(context.Background())
	if err != nil {
		t.Fatalf("StartRendering: %v", err)
	}
	return buf
}

// dc returns a looping source that outputs v on every frame.
func dc(t *testing.T, c *Context, v float32) *BufferSource {
	t.Helper()
	src, err := c.NewBufferSource(&audio.Buffer{SampleRate: int(c.SampleRate()), Data: [][]float32{{v}}})
	if err != nil {
		t.Fatalf("NewBufferSource: %v", err)
	}
	src.SetLoop(true)
	if err := src.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return src
}

func mustConnect(t *testing.T, src, dst Node) {
	t.Helper()
	if err := src.base().Connect(dst); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

// --- Context ---

func TestNewContextRejectsBadArgs(t *testing.T) {
	tests := []struct {
		sr       float64
		channels int
	}{
		{0, 1},
		{-44100, 2},
		{math.NaN(), 1},
		{44100, 0},
		{44100, 3},
	}
	for _, tt := range tests {
		if _, err := NewContext(tt.sr, tt.channels); err == nil {
			t.Errorf("NewContext(%v, %d) returned nil error", tt.sr, tt.channels)
		}
	}
}

func TestOfflineLengthAndShape(t *testing.T) {
	o := newOffline(t, 2, 1000, 44100)
	buf := render(t, o)
	if buf.NumChannels() != 2 {
		t.Errorf("NumChannels = %d, want 2", buf.NumChannels())
	}
	if buf.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", buf.Len())
	}
	if buf.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", buf.SampleRate)
	}
}

func TestOfflineZeroLength(t *testing.T) {
	buf := render(t, newOffline(t, 1, 0, 44100))
	if buf.Len() != 0 {
		t.Errorf("Len = %d, want 0", buf.Len())
	}
}

func TestStartRenderingOnce(t *testing.T) {
	o := newOffline(t, 1, 10, 44100)
	render(t, o)
	if _, err := o.StartRendering(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second StartRendering error = %v, want ErrInvalidState", err)
	}
}

func TestStartRenderingCancelled(t *testing.T) {
	o := newOffline(t, 1, 44100, 44100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.StartRendering(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("StartRendering error = %v, want context.Canceled", err)
	}
}

// --- Oscillator ---

func TestOscillatorPhase(t *testing.T) {
	o := newOffline(t, 1, 480, 48000)
	osc := o.NewOscillator()
	if err := osc.Frequency.SetValueAtTime(1000, 0); err != nil {
		t.Fatal(err)
	}
	mustConnect(t, osc, o.Destination())
	if err := osc.Start(0); err != nil {
		t.Fatal(err)
	}
	buf := render(t, o)

	if buf.Data[0][0] != 0 {
		t.Errorf("first sample = %v, want 0", buf.Data[0][0])
	}
	// 1 kHz at 48 kHz reaches a quarter period after 12 frames
	if got := buf.Data[0][12]; math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("sample[12] = %v, want 1", got)
	}
	if got := buf.Data[0][24]; math.Abs(float64(got)) > 1e-6 {
		t.Errorf("sample[24] = %v, want 0", got)
	}
}

func TestOscillatorSingleUse(t *testing.T) {
	c, _ := NewContext(48000, 1)
	osc := c.NewOscillator()
	if err := osc.Stop(0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Stop before Start error = %v, want ErrInvalidState", err)
	}
	if err := osc.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := osc.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := osc.Start(0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Start error = %v, want ErrInvalidState", err)
	}
}

func TestOscillatorStopSilences(t *testing.T) {
	o := newOffline(t, 1, 256, 48000)
	osc := o.NewOscillator()
	mustConnect(t, osc, o.Destination())
	_ = osc.Start(0)
	_ = osc.Stop(100.0 / 48000)
	buf := render(t, o)
	for i := 100; i < 256; i++ {
		if buf.Data[0][i] != 0 {
			t.Fatalf("sample[%d] = %v after stop, want 0", i, buf.Data[0][i])
		}
	}
}

// --- Gain ---

func TestGainScalesInput(t *testing.T) {
	o := newOffline(t, 1, 256, 48000)
	g := o.NewGain()
	_ = g.Gain.SetValueAtTime(0.25, 0)
	mustConnect(t, dc(t, o.Context, 0.8), g)
	mustConnect(t, g, o.Destination())
	buf := render(t, o)
	for i, v := range buf.Data[0] {
		if math.Abs(float64(v)-0.2) > 1e-6 {
			t.Fatalf("sample[%d] = %v, want 0.2", i, v)
		}
	}
}

func TestGainParamModulation(t *testing.T) {
	o := newOffline(t, 1, 128, 48000)
	g := o.NewGain()
	_ = g.Gain.SetValueAtTime(0.5, 0)
	mustConnect(t, dc(t, o.Context, 1), g)
	if err := dc(t, o.Context, 0.25).ConnectParam(g.Gain); err != nil {
		t.Fatalf("ConnectParam: %v", err)
	}
	mustConnect(t, g, o.Destination())
	buf := render(t, o)
	if got := buf.Data[0][64]; math.Abs(float64(got)-0.75) > 1e-6 {
		t.Errorf("sample = %v, want 0.75", got)
	}
}

// --- StereoPanner ---

func TestStereoPannerHardPan(t *testing.T) {
	tests := []struct {
		pan         float64
		left, right float64
	}{
		{-1, 1, 0},
		{1, 0, 1},
		{0, math.Sqrt2 / 2, math.Sqrt2 / 2},
	}
	for _, tt := range tests {
		o := newOffline(t, 2, 128, 48000)
		p := o.NewStereoPanner()
		_ = p.Pan.SetValueAtTime(tt.pan, 0)
		mustConnect(t, dc(t, o.Context, 1), p)
		mustConnect(t, p, o.Destination())
		buf := render(t, o)
		l, r := float64(buf.Data[0][10]), float64(buf.Data[1][10])
		if math.Abs(l-tt.left) > 1e-6 || math.Abs(r-tt.right) > 1e-6 {
			t.Errorf("pan %v: L=%v R=%v, want L=%v R=%v", tt.pan, l, r, tt.left, tt.right)
		}
	}
}

func TestPanModulationIsClamped(t *testing.T) {
	o := newOffline(t, 2, 128, 48000)
	p := o.NewStereoPanner()
	mustConnect(t, dc(t, o.Context, 1), p)
	_ = dc(t, o.Context, 5).ConnectParam(p.Pan)
	mustConnect(t, p, o.Destination())
	buf := render(t, o)
	if l := buf.Data[0][0]; math.Abs(float64(l)) > 1e-6 {
		t.Errorf("left = %v, want 0 with pan clamped to +1", l)
	}
	if r := buf.Data[1][0]; math.Abs(float64(r)-1) > 1e-6 {
		t.Errorf("right = %v, want 1", r)
	}
}

// --- Mixing ---

func TestDestinationDownmixesStereo(t *testing.T) {
	o := newOffline(t, 1, 128, 48000)
	p := o.NewStereoPanner()
	_ = p.Pan.SetValueAtTime(-1, 0)
	mustConnect(t, dc(t, o.Context, 1), p)
	mustConnect(t, p, o.Destination())
	buf := render(t, o)
	if got := buf.Data[0][0]; math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("mono downmix = %v, want 0.5", got)
	}
}

func TestDestinationUpmixesMono(t *testing.T) {
	o := newOffline(t, 2, 128, 48000)
	mustConnect(t, dc(t, o.Context, 0.5), o.Destination())
	buf := render(t, o)
	if buf.Data[0][3] != 0.5 || buf.Data[1][3] != 0.5 {
		t.Errorf("upmix = (%v, %v), want (0.5, 0.5)", buf.Data[0][3], buf.Data[1][3])
	}
}

func TestInputsAreSummed(t *testing.T) {
	o := newOffline(t, 1, 128, 48000)
	mustConnect(t, dc(t, o.Context, 0.25), o.Destination())
	mustConnect(t, dc(t, o.Context, 0.5), o.Destination())
	buf := render(t, o)
	if got := buf.Data[0][7]; got != 0.75 {
		t.Errorf("sum = %v, want 0.75", got)
	}
}

// --- BufferSource ---

func TestBufferSourceLoop(t *testing.T) {
	tests := []struct {
		name string
		loop bool
		want []float32
	}{
		{"loop", true, []float32{0, 1, 2, 3, 0, 1, 2, 3, 0, 1}},
		{"once", false, []float32{0, 1, 2, 3, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOffline(t, 1, 10, 8000)
			src, err := o.NewBufferSource(&audio.Buffer{SampleRate: 8000, Data: [][]float32{{0, 1, 2, 3}}})
			if err != nil {
				t.Fatal(err)
			}
			src.SetLoop(tt.loop)
			mustConnect(t, src, o.Destination())
			_ = src.Start(0)
			buf := render(t, o)
			for i, w := range tt.want {
				if buf.Data[0][i] != w {
					t.Errorf("sample[%d] = %v, want %v", i, buf.Data[0][i], w)
				}
			}
			if ended := src.Ended(); ended == tt.loop {
				t.Errorf("Ended = %v, want %v", ended, !tt.loop)
			}
		})
	}
}

func TestBufferSourceResamples(t *testing.T) {
	o := newOffline(t, 1, 6, 48000)
	src, _ := o.NewBufferSource(&audio.Buffer{SampleRate: 24000, Data: [][]float32{{0, 1, 0.5}}})
	mustConnect(t, src, o.Destination())
	_ = src.Start(0)
	buf := render(t, o)
	want := []float32{0, 0.5, 1, 0.75, 0.5, 0.5}
	for i, w := range want {
		if math.Abs(float64(buf.Data[0][i]-w)) > 1e-6 {
			t.Errorf("sample[%d] = %v, want %v", i, buf.Data[0][i], w)
		}
	}
}

func TestBufferSourceRejectsEmpty(t *testing.T) {
	c, _ := NewContext(48000, 2)
	if _, err := c.NewBufferSource(nil); err == nil {
		t.Error("NewBufferSource(nil) returned nil error")
	}
	if _, err := c.NewBufferSource(&audio.Buffer{SampleRate: 48000}); err == nil {
		t.Error("NewBufferSource without channels returned nil error")
	}
}

// --- Realtime pull ---

func TestReadMatchesOfflineRender(t *testing.T) {
	build := func(c *Context) {
		osc := c.NewOscillator()
		_ = osc.Frequency.SetValueAtTime(440, 0)
		g := c.NewGain()
		_ = g.Gain.SetValueAtTime(0.5, 0)
		mustConnect(t, osc, g)
		mustConnect(t, g, c.Destination())
		_ = osc.Start(0)
	}

	o := newOffline(t, 1, 1000, 48000)
	build(o.Context)
	want := render(t, o).Data[0]

	live, _ := NewContext(48000, 1)
	build(live)
	got := make([]float32, 0, 1000)
	chunk := [][]float32{make([]float32, 100)}
	for len(got) < 1000 {
		live.Read(chunk)
		got = append(got, chunk[0]...)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: live %v != offline %v", i, got[i], want[i])
		}
	}
	if live.Frame() != 1024 {
		t.Errorf("Frame = %d, want 1024 (8 quanta)", live.Frame())
	}
}

func TestCloseSilencesRead(t *testing.T) {
	c, _ := NewContext(48000, 2)
	mustConnect(t, dc(t, c, 1), c.Destination())
	c.Close()
	out := [][]float32{make([]float32, 64), make([]float32, 64)}
	out[0][0], out[1][0] = 9, 9
	c.Read(out)
	if out[0][0] != 0 || out[1][0] != 0 {
		t.Error("Read after Close did not return silence")
	}
	if c.ActiveNodes() != 0 {
		t.Errorf("ActiveNodes after Close = %d, want 0", c.ActiveNodes())
	}
}

// --- Lifecycle ---

func TestReleaseRemovesNode(t *testing.T) {
	c, _ := NewContext(48000, 2)
	osc := c.NewOscillator()
	g := c.NewGain()
	mustConnect(t, osc, g)
	mustConnect(t, g, c.Destination())
	_ = osc.Start(0)

	if n := c.ActiveNodes(); n != 2 {
		t.Fatalf("ActiveNodes = %d, want 2", n)
	}
	if n := c.ActiveGenerators(); n != 1 {
		t.Fatalf("ActiveGenerators = %d, want 1", n)
	}

	osc.Release()
	g.Release()
	if n := c.ActiveNodes(); n != 0 {
		t.Errorf("ActiveNodes after Release = %d, want 0", n)
	}
	if n := c.ActiveGenerators(); n != 0 {
		t.Errorf("ActiveGenerators after Release = %d, want 0", n)
	}
	if len(c.Destination().inputs) != 0 {
		t.Errorf("destination still has %d inputs", len(c.Destination().inputs))
	}
	if err := osc.Connect(c.Destination()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Connect after Release error = %v, want ErrInvalidState", err)
	}
	if err := osc.Start(0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start after Release error = %v, want ErrInvalidState", err)
	}
}

func TestConnectAcrossContexts(t *testing.T) {
	a, _ := NewContext(48000, 1)
	b, _ := NewContext(48000, 1)
	if err := a.NewGain().Connect(b.Destination()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cross-context Connect error = %v, want ErrInvalidState", err)
	}
}

func TestDisconnectStopsSignal(t *testing.T) {
	o := newOffline(t, 1, 128, 48000)
	src := dc(t, o.Context, 1)
	mustConnect(t, src, o.Destination())
	src.Disconnect()
	buf := render(t, o)
	if buf.Data[0][0] != 0 {
		t.Errorf("sample = %v after Disconnect, want 0", buf.Data[0][0])
	}
}
