package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satindergrewal/aura/internal/tone"
)

// Player is the live tone engine. It owns at most one session: starting a
// new one tears the previous one down first.
type Player struct {
	out      *Output
	logger   *zap.Logger
	onChange ChangeFunc

	mu      sync.Mutex
	bus     bus
	session *Session
	variant tone.Variant // last known good
}

// NewPlayer creates an idle player on out. volume is the player's own level
// ahead of the master gain.
func NewPlayer(out *Output, volume float64, logger *zap.Logger, onChange ChangeFunc) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	volume, _ = tone.SanitizeLevel("frequenciesVolume", volume, 1)
	return &Player{
		out:      out,
		logger:   logger,
		onChange: onChange,
		bus:      bus{out: out, level: volume},
		variant:  tone.Defaults(tone.KindIsochronic),
	}
}

// Start tears down any running session, builds v and starts it now.
func (p *Player) Start(v tone.Variant) error {
	p.mu.Lock()
	err := p.start(v)
	p.mu.Unlock()
	p.out.recordNodes()
	if err != nil {
		return err
	}
	p.notify(StatePlaying)
	return nil
}

func (p *Player) start(v tone.Variant) error {
	v = sanitize(p.logger, v, p.variant)
	ctx, busGain, err := p.bus.ensure()
	if err != nil {
		return err
	}

	p.session.Close()
	p.session = nil

	at := ctx.CurrentTime()
	voice, err := tone.Build(ctx, busGain, v, at)
	if err != nil {
		return err
	}
	if err := voice.Start(at); err != nil {
		voice.Release()
		return fmt.Errorf("start %s: %w", v.Kind(), err)
	}

	s := newSession(TargetFrequencies)
	s.voice = voice
	p.session = s
	p.variant = v

	metrics.SessionsStartedTotal.WithLabelValues(TargetFrequencies.String(), v.Kind().String()).Inc()
	p.logger.Info("Frequencies started",
		zap.String("session", s.ID),
		zap.String("tone", v.Kind().String()),
		zap.Int("nodes", voice.Nodes()))
	return nil
}

// Update applies a partial parameter change. While playing, only the changed
// parameters are rescheduled on the running voice. It returns the variant now
// in effect.
func (p *Player) Update(patch tone.Patch) (tone.Variant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := sanitize(p.logger, patch.Apply(p.variant), p.variant)
	if p.session == nil {
		p.variant = next
		return next, nil
	}
	if _, err := p.session.voice.Update(next, p.bus.ctx.CurrentTime()); err != nil {
		return p.variant, err
	}
	p.variant = next
	return next, nil
}

// SetVariant replaces the whole parameter set. A playing voice of the same
// kind is updated in place; a different kind is rebuilt without passing
// through Idle.
func (p *Player) SetVariant(v tone.Variant) error {
	p.mu.Lock()
	if p.session == nil {
		p.variant = sanitize(p.logger, v, p.variant)
		p.mu.Unlock()
		return nil
	}
	if v != nil && v.Kind() == p.session.voice.Kind() {
		next := sanitize(p.logger, v, p.variant)
		_, err := p.session.voice.Update(next, p.bus.ctx.CurrentTime())
		if err == nil {
			p.variant = next
		}
		p.mu.Unlock()
		return err
	}
	err := p.start(v)
	p.mu.Unlock()
	p.out.recordNodes()
	return err
}

// Stop tears down the running session. Stopping an idle player does nothing.
func (p *Player) Stop() {
	p.mu.Lock()
	s := p.session
	p.session = nil
	s.Close()
	p.mu.Unlock()
	if s == nil {
		return
	}
	p.out.recordNodes()
	p.logger.Info("Frequencies stopped", zap.String("session", s.ID))
	p.notify(StateIdle)
}

// SetGlobalVolume sets the master volume shared by every source.
func (p *Player) SetGlobalVolume(v float64) {
	v, verr := tone.SanitizeLevel("volume", v, p.out.Volume())
	report(p.logger, verr)
	p.out.SetVolume(v)
}

// SetVolume sets the player's own level ahead of the master gain.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, verr := tone.SanitizeLevel("frequenciesVolume", v, p.bus.level)
	report(p.logger, verr)
	if err := p.bus.set(v); err != nil {
		p.logger.Warn("Frequencies volume not applied", zap.Error(err))
	}
}

// Volume returns the player's own level.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bus.level
}

// State reports whether a session is running.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return StatePlaying
	}
	return StateIdle
}

// Variant returns the parameters in effect, or that will be used by the next
// Start with a nil variant.
func (p *Player) Variant() tone.Variant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.variant
}

// SessionID returns the running session's id, or "".
func (p *Player) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ""
	}
	return p.session.ID
}

func (p *Player) notify(s State) {
	if p.onChange != nil {
		p.onChange(TargetFrequencies, s)
	}
}

// sanitize clamps v, logging and counting every correction.
func sanitize(logger *zap.Logger, v, fallback tone.Variant) tone.Variant {
	out, errs := tone.Sanitize(v, fallback)
	tone.Report(logger, errs...)
	return out
}

func report(logger *zap.Logger, verr *tone.ValidationError) {
	if verr != nil {
		tone.Report(logger, *verr)
	}
}
