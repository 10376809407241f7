package penalty

import (
	"fmt"
	"math"
	"strings"
)

// Waveform gives the penalty duration (in ticks) for a penalty starting at t.
type Waveform interface {
	DurationAt(t uint64) uint64
}

type Constant uint64

func (c Constant) DurationAt(uint64) uint64 { return uint64(c) }

// Step switches from Before to After at tick At.
type Step struct {
	Before uint64
	After  uint64
	At     uint64
}

func (s Step) DurationAt(t uint64) uint64 {
	if t < s.At {
		return s.Before
	}
	return s.After
}

// Square alternates High (first half of each period) and Low.
type Square struct {
	Low    uint64
	High   uint64
	Period uint64
	Phase  uint64
}

func (s Square) DurationAt(t uint64) uint64 {
	if s.Period == 0 {
		return s.High
	}
	if (t+s.Phase)%s.Period < s.Period/2 {
		return s.High
	}
	return s.Low
}

// Sine is Offset + Amplitude*sin(2π(t+Phase)/Period), rounded and floored at 0.
type Sine struct {
	Amplitude float64
	Offset    float64
	Period    float64
	Phase     float64
}

func (s Sine) DurationAt(t uint64) uint64 {
	v := s.Offset
	if s.Period > 0 {
		v += s.Amplitude * math.Sin(2*math.Pi*(float64(t)+s.Phase)/s.Period)
	}
	if v <= 0 {
		return 0
	}
	return uint64(math.Round(v))
}

// Spec is the declarative form of a waveform, as found in tuning files.
type Spec struct {
	Type      string
	Value     float64
	Amplitude float64
	Period    float64
	Phase     float64
	After     float64
	At        uint64
}

func NewWaveform(s Spec) (Waveform, error) {
	nonNeg := func(name string, v float64) (uint64, error) {
		if v < 0 {
			return 0, fmt.Errorf("waveform %s: %s must be >= 0, got %v", s.Type, name, v)
		}
		return uint64(math.Round(v)), nil
	}
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "", "null":
		return Constant(0), nil
	case "constant":
		v, err := nonNeg("value", s.Value)
		return Constant(v), err
	case "step":
		before, err := nonNeg("value", s.Value)
		if err != nil {
			return nil, err
		}
		after, err := nonNeg("after", s.After)
		if err != nil {
			return nil, err
		}
		return Step{Before: before, After: after, At: s.At}, nil
	case "square":
		low, err := nonNeg("value", s.Value)
		if err != nil {
			return nil, err
		}
		high, err := nonNeg("amplitude", s.Amplitude)
		if err != nil {
			return nil, err
		}
		period, err := nonNeg("period", s.Period)
		if err != nil {
			return nil, err
		}
		phase, err := nonNeg("phase", s.Phase)
		if err != nil {
			return nil, err
		}
		return Square{Low: low, High: high, Period: period, Phase: phase}, nil
	case "sine":
		if s.Period <= 0 {
			return nil, fmt.Errorf("waveform sine: period must be > 0")
		}
		return Sine{Amplitude: s.Amplitude, Offset: s.Value, Period: s.Period, Phase: s.Phase}, nil
	default:
		return nil, fmt.Errorf("unknown waveform type %q", s.Type)
	}
}

// Durations maps operation kinds onto their configured waveforms. Every cache
// operation shares the cache usage waveform.
type Durations struct {
	FreePickup Waveform
	NestDrop   Waveform
	CacheUsage Waveform
}

func (d Durations) For(k Kind) Waveform {
	var w Waveform
	switch k {
	case FreeBlockPickup:
		w = d.FreePickup
	case NestBlockDrop:
		w = d.NestDrop
	default:
		w = d.CacheUsage
	}
	if w == nil {
		return Constant(0)
	}
	return w
}

func (d Durations) At(k Kind, t uint64) uint64 { return d.For(k).DurationAt(t) }
