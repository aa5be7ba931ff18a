// Package pacing computes how long the simulated contact "thinks" before
// replying and the gaps between reply bubbles.
package pacing

import (
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rcliao/exsim/internal/model"
)

// Config holds the timing policy. Zero fields take the documented defaults.
type Config struct {
	// InitialBase is the thinking time before any reply. Default: 1.5s.
	InitialBase time.Duration
	// PerInputChar is added to the initial delay per rune of the user's
	// message. Default: 20ms.
	PerInputChar time.Duration
	// InitialMin and InitialMax clamp the initial delay. Defaults: 500ms, 20s.
	InitialMin time.Duration
	InitialMax time.Duration
	// Jitter is the relative spread applied to the initial delay when a
	// random source is present, e.g. 0.2 for ±20%. Default: 0 (deterministic).
	Jitter float64
	// PerChar scales the gap after a bubble with its length. Default: 50ms.
	PerChar time.Duration
	// Floor is the minimum gap between bubbles. Default: 1s.
	Floor time.Duration
	// Observation is how long after delivery a bubble is marked seen.
	// Default: 2s.
	Observation time.Duration
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		InitialBase:  1500 * time.Millisecond,
		PerInputChar: 20 * time.Millisecond,
		InitialMin:   500 * time.Millisecond,
		InitialMax:   20 * time.Second,
		PerChar:      50 * time.Millisecond,
		Floor:        time.Second,
		Observation:  2 * time.Second,
	}
}

var styleFactor = map[model.AttachmentStyle]float64{
	model.StyleAnxious:      0.5,
	model.StyleSecure:       1.0,
	model.StyleDisorganized: 1.2,
	model.StyleAvoidant:     2.5,
}

var toneFactor = map[model.EmotionalTone]float64{
	model.TonePlayful:   0.8,
	model.ToneWarm:      0.9,
	model.ToneNeutral:   1.0,
	model.ToneNostalgic: 1.1,
	model.ToneHurt:      1.2,
	model.ToneAngry:     1.3,
	model.ToneCold:      1.5,
}

// Pacer applies a Config. It is safe for concurrent use.
type Pacer struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Pacer. rng may be nil, in which case Jitter is ignored and
// every delay is a pure function of its inputs.
func New(cfg Config, rng *rand.Rand) *Pacer {
	def := DefaultConfig()
	if cfg.InitialBase <= 0 {
		cfg.InitialBase = def.InitialBase
	}
	if cfg.PerInputChar <= 0 {
		cfg.PerInputChar = def.PerInputChar
	}
	if cfg.InitialMin <= 0 {
		cfg.InitialMin = def.InitialMin
	}
	if cfg.InitialMax <= 0 {
		cfg.InitialMax = def.InitialMax
	}
	if cfg.InitialMax < cfg.InitialMin {
		cfg.InitialMax = cfg.InitialMin
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	if cfg.PerChar <= 0 {
		cfg.PerChar = def.PerChar
	}
	if cfg.Floor <= 0 {
		cfg.Floor = def.Floor
	}
	if cfg.Observation <= 0 {
		cfg.Observation = def.Observation
	}
	return &Pacer{cfg: cfg, rng: rng}
}

// Config returns the effective configuration.
func (p *Pacer) Config() Config {
	return p.cfg
}

// BaseInitialDelay is the deterministic initial delay before clamping and
// jitter. Longer user messages take longer to "read"; anxious personas
// answer fastest and avoidant ones slowest.
func (p *Pacer) BaseInitialDelay(userMessage string, style model.AttachmentStyle, tone model.EmotionalTone) time.Duration {
	d := float64(p.cfg.InitialBase) + float64(utf8.RuneCountInString(userMessage))*float64(p.cfg.PerInputChar)
	if f, ok := styleFactor[style]; ok {
		d *= f
	}
	if f, ok := toneFactor[tone]; ok {
		d *= f
	}
	return time.Duration(d)
}

// InitialDelay returns the wait before the first bubble. With a random
// source the result lies within ±Jitter of BaseInitialDelay; it is always
// within [InitialMin, InitialMax].
func (p *Pacer) InitialDelay(userMessage string, style model.AttachmentStyle, tone model.EmotionalTone) time.Duration {
	d := float64(p.BaseInitialDelay(userMessage, style, tone))
	if p.rng != nil && p.cfg.Jitter > 0 {
		p.mu.Lock()
		r := p.rng.Float64()
		p.mu.Unlock()
		d *= 1 + (2*r-1)*p.cfg.Jitter
	}
	return p.clamp(time.Duration(d))
}

func (p *Pacer) clamp(d time.Duration) time.Duration {
	if d < p.cfg.InitialMin {
		return p.cfg.InitialMin
	}
	if d > p.cfg.InitialMax {
		return p.cfg.InitialMax
	}
	return d
}

// FragmentDelay is max(Floor, len(text) * PerChar), counting runes of the
// bubble's visible text.
func (p *Pacer) FragmentDelay(f model.Fragment) time.Duration {
	d := time.Duration(utf8.RuneCountInString(f.Content())) * p.cfg.PerChar
	if d < p.cfg.Floor {
		return p.cfg.Floor
	}
	return d
}

// Entry is one bubble's place on the timeline, as offsets from the moment
// the reply was received.
type Entry struct {
	Index     int            `json:"index"`
	Fragment  model.Fragment `json:"fragment"`
	DeliverAt time.Duration  `json:"deliver_at"`
	SeenAt    time.Duration  `json:"seen_at"`
}

// Schedule is the timeline of one reply.
type Schedule struct {
	Initial time.Duration `json:"initial"`
	Entries []Entry       `json:"entries"`
}

// Done is the offset of the last seen flip.
func (s Schedule) Done() time.Duration {
	if len(s.Entries) == 0 {
		return s.Initial
	}
	return s.Entries[len(s.Entries)-1].SeenAt
}

// Plan fills in fragment delays and lays out the timeline. Fragment i is
// delivered at initial + sum of the delays of fragments 0..i-1 and seen
// Observation later.
func (p *Pacer) Plan(frags []model.Fragment, initial time.Duration) Schedule {
	s := Schedule{Initial: initial, Entries: make([]Entry, len(frags))}
	at := initial
	for i, f := range frags {
		f.Delay = p.FragmentDelay(f)
		s.Entries[i] = Entry{
			Index:     i,
			Fragment:  f,
			DeliverAt: at,
			SeenAt:    at + p.cfg.Observation,
		}
		at += f.Delay
	}
	return s
}
