package pacing

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/exsim/internal/fragment"
	"github.com/rcliao/exsim/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FillsDefaults(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, DefaultConfig(), p.Config())
}

func TestInitialDelay_Deterministic(t *testing.T) {
	p := New(DefaultConfig(), nil)
	a := p.InitialDelay("hola", model.StyleSecure, model.ToneNeutral)
	b := p.InitialDelay("hola", model.StyleSecure, model.ToneNeutral)
	assert.Equal(t, a, b)
	assert.Equal(t, 1500*time.Millisecond+4*20*time.Millisecond, a)
}

func TestInitialDelay_StyleOrdering(t *testing.T) {
	p := New(DefaultConfig(), nil)
	msg := "¿por qué no me contestas?"
	anxious := p.InitialDelay(msg, model.StyleAnxious, model.ToneNeutral)
	secure := p.InitialDelay(msg, model.StyleSecure, model.ToneNeutral)
	avoidant := p.InitialDelay(msg, model.StyleAvoidant, model.ToneNeutral)
	assert.Less(t, anxious, secure)
	assert.Less(t, secure, avoidant)
}

func TestInitialDelay_GrowsWithMessageLength(t *testing.T) {
	p := New(DefaultConfig(), nil)
	short := p.InitialDelay("ok", model.StyleSecure, model.ToneWarm)
	long := p.InitialDelay(strings.Repeat("palabras ", 20), model.StyleSecure, model.ToneWarm)
	assert.Greater(t, long, short)
}

func TestInitialDelay_Clamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialMax = 3 * time.Second
	p := New(cfg, nil)
	d := p.InitialDelay(strings.Repeat("x", 5000), model.StyleAvoidant, model.ToneCold)
	assert.Equal(t, 3*time.Second, d)

	d = p.InitialDelay("", model.StyleAnxious, model.TonePlayful)
	assert.Equal(t, 600*time.Millisecond, d)
}

func TestInitialDelay_JitterRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jitter = 0.25
	p := New(cfg, rand.New(rand.NewSource(7)))

	base := p.BaseInitialDelay("te escribo porque sí", model.StyleDisorganized, model.ToneHurt)
	lo := time.Duration(float64(base) * 0.75)
	hi := time.Duration(float64(base) * 1.25)
	for i := 0; i < 200; i++ {
		d := p.InitialDelay("te escribo porque sí", model.StyleDisorganized, model.ToneHurt)
		require.GreaterOrEqual(t, d, lo)
		require.LessOrEqual(t, d, hi)
		require.GreaterOrEqual(t, d, cfg.InitialMin)
		require.LessOrEqual(t, d, cfg.InitialMax)
	}
}

func TestFragmentDelay_Floor(t *testing.T) {
	p := New(DefaultConfig(), nil)
	for _, text := range []string{"", " ", "ok", "hola"} {
		assert.Equal(t, time.Second, p.FragmentDelay(model.Fragment{Text: text}), "text %q", text)
	}
	long := model.Fragment{Text: strings.Repeat("a", 100)}
	assert.Equal(t, 5*time.Second, p.FragmentDelay(long))
}

func TestPlan_MonotonicAndFloor(t *testing.T) {
	p := New(DefaultConfig(), nil)
	frags := []model.Fragment{
		{Text: ""},
		{Text: "a"},
		{Text: strings.Repeat("b", 60)},
		{Text: "c"},
		{Text: strings.Repeat("d", 300)},
	}
	s := p.Plan(frags, 700*time.Millisecond)
	require.Len(t, s.Entries, len(frags))

	var prevDeliver, prevSeen time.Duration
	for i, e := range s.Entries {
		assert.GreaterOrEqual(t, e.Fragment.Delay, time.Second, "entry %d", i)
		assert.GreaterOrEqual(t, e.DeliverAt, prevDeliver, "entry %d", i)
		assert.GreaterOrEqual(t, e.SeenAt, e.DeliverAt, "entry %d", i)
		assert.GreaterOrEqual(t, e.SeenAt, prevSeen, "entry %d", i)
		prevDeliver, prevSeen = e.DeliverAt, e.SeenAt
	}
	assert.Equal(t, 700*time.Millisecond, s.Entries[0].DeliverAt)
	assert.Equal(t, s.Entries[4].SeenAt, s.Done())
}

func TestPlan_AnxiousScenario(t *testing.T) {
	p := New(DefaultConfig(), nil)
	frags := fragment.Split("Hola\n\nte extraño mucho\n\n¿me perdonas?", model.StyleAnxious, fragment.DefaultOptions())
	require.Len(t, frags, 3)

	initial := p.InitialDelay("perdóname", model.StyleAnxious, model.ToneHurt)
	s := p.Plan(frags, initial)

	// "Hola" and "te extraño mucho" are below the floor
	assert.Equal(t, initial, s.Entries[0].DeliverAt)
	assert.Equal(t, initial+time.Second, s.Entries[1].DeliverAt)
	assert.Equal(t, initial+2*time.Second, s.Entries[2].DeliverAt)
	assert.Equal(t, s.Entries[2].DeliverAt+2*time.Second, s.Entries[2].SeenAt)
	assert.Less(t, s.Entries[1].SeenAt, s.Entries[2].SeenAt)
}

func TestPlan_Empty(t *testing.T) {
	p := New(DefaultConfig(), nil)
	s := p.Plan(nil, time.Second)
	assert.Empty(t, s.Entries)
	assert.Equal(t, time.Second, s.Done())
}
