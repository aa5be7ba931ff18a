// Package engine drives one simulated-contact exchange end to end: prompt,
// generative call, fragmentation, paced delivery, seen flips and memory
// compaction.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcliao/exsim/internal/compact"
	"github.com/rcliao/exsim/internal/fragment"
	"github.com/rcliao/exsim/internal/model"
	"github.com/rcliao/exsim/internal/pacing"
	"github.com/rcliao/exsim/internal/prompt"
	"github.com/rcliao/exsim/internal/provider"
	"github.com/rcliao/exsim/internal/scheduler"
	"github.com/rcliao/exsim/internal/store"
)

// State is where a profile's conversation is in the reply pipeline.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingModel State = "awaiting_model"
	StateFragmenting   State = "fragmenting"
	StateScheduling    State = "scheduling"
	StateDelivering    State = "delivering"
	StateVoided        State = "voided"
)

// Listener receives UI events. Methods are called from scheduler loops and
// must not block for long.
type Listener interface {
	Typing(profileID string, on bool)
	Delivered(msg model.Message)
	Seen(profileID, messageID string)
	Failed(profileID string, err error)
	Warn(profileID string, err error)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) Typing(string, bool) {}
func (NopListener) Delivered(model.Message) {}
func (NopListener) Seen(string, string) {}
func (NopListener) Failed(string, error) {}
func (NopListener) Warn(string, error) {}

// Options tunes the engine. Zero values take package defaults.
type Options struct {
	Fragment      fragment.Options
	MemoryCap     int
	HistoryBudget int
	Listener      Listener
}

// Engine is safe for concurrent use.
type Engine struct {
	store    store.ConversationStore
	gen      provider.Generator
	pacer    *pacing.Pacer
	sched    *scheduler.Scheduler
	log      zerolog.Logger
	listener Listener
	opts     Options
	now      func() time.Time

	mu     sync.Mutex
	active string
	convs  map[string]*conversation
}

type conversation struct {
	generation uuid.UUID
	state      State
	inflight   map[*Reply]struct{}
}

// New wires an engine.
func New(st store.ConversationStore, gen provider.Generator, pacer *pacing.Pacer, sched *scheduler.Scheduler, logger zerolog.Logger, opts Options) *Engine {
	if opts.Fragment == (fragment.Options{}) {
		opts.Fragment = fragment.DefaultOptions()
	}
	if opts.MemoryCap <= 0 {
		opts.MemoryCap = compact.DefaultCap
	}
	if opts.HistoryBudget <= 0 {
		opts.HistoryBudget = prompt.DefaultHistoryBudget
	}
	l := opts.Listener
	if l == nil {
		l = NopListener{}
	}
	return &Engine{
		store:    st,
		gen:      gen,
		pacer:    pacer,
		sched:    sched,
		log:      logger.With().Str("component", "engine").Logger(),
		listener: l,
		opts:     opts,
		now:      time.Now,
		convs:    make(map[string]*conversation),
	}
}

// Reply tracks one scheduled reply.
type Reply struct {
	ProfileID  string
	Generation uuid.UUID
	// Raw is the unfragmented model output.
	Raw      string
	Schedule pacing.Schedule
	// Start is the instant schedule offsets are measured from.
	Start time.Time

	once   sync.Once
	done   chan struct{}
	voided bool
}

func newReply(profileID string, gen uuid.UUID) *Reply {
	return &Reply{ProfileID: profileID, Generation: gen, done: make(chan struct{})}
}

// Done is closed once every bubble was delivered and seen, or the reply was
// voided.
func (r *Reply) Done() <-chan struct{} { return r.done }

// Voided reports whether the reply was cancelled before it completed.
// Only meaningful after Done is closed.
func (r *Reply) Voided() bool {
	select {
	case <-r.done:
		return r.voided
	default:
		return false
	}
}

func (r *Reply) finish(voided bool) {
	r.once.Do(func() {
		r.voided = voided
		close(r.done)
	})
}

// Active returns the active profile ID.
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// State returns the pipeline state of a profile.
func (e *Engine) State(profileID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.convs[profileID]; ok {
		return c.state
	}
	return StateIdle
}

// Activate makes profileID the active conversation. Switching away from
// another profile voids everything still pending for it: once Activate
// returns, no further message of the previous profile is persisted.
// An empty profileID deactivates without selecting a new one.
func (e *Engine) Activate(profileID string) {
	e.mu.Lock()
	prev := e.active
	if prev == profileID {
		if profileID != "" {
			e.conversationLocked(profileID)
		}
		e.mu.Unlock()
		return
	}
	e.active = profileID
	var voided []*Reply
	if c, ok := e.convs[prev]; ok {
		c.generation = uuid.New()
		c.state = StateVoided
		for r := range c.inflight {
			voided = append(voided, r)
		}
		c.inflight = make(map[*Reply]struct{})
	}
	if profileID != "" {
		e.conversationLocked(profileID)
	}
	n := 0
	if prev != "" {
		n = e.sched.CancelAll(prev)
	}
	e.mu.Unlock()

	if prev == "" {
		return
	}
	for _, r := range voided {
		r.finish(true)
	}
	if len(voided) > 0 {
		e.listener.Typing(prev, false)
	}
	e.log.Debug().
		Str("from", prev).
		Str("to", profileID).
		Int("voided_tasks", n).
		Err(model.ErrContextInvalidated).
		Msg("switched conversation")
}

func (e *Engine) conversationLocked(profileID string) *conversation {
	c, ok := e.convs[profileID]
	if !ok {
		c = &conversation{
			generation: uuid.New(),
			state:      StateIdle,
			inflight:   make(map[*Reply]struct{}),
		}
		e.convs[profileID] = c
	}
	return c
}

// currentLocked reports whether gen is still the live generation of the active
// profile. Caller holds e.mu.
func (e *Engine) currentLocked(profileID string, gen uuid.UUID) bool {
	c, ok := e.convs[profileID]
	return ok && e.active == profileID && c.generation == gen
}

func (e *Engine) setState(profileID string, gen uuid.UUID, s State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(profileID, gen) {
		return false
	}
	e.convs[profileID].state = s
	return true
}

// Send runs one exchange: it activates profileID, persists the user
// message, calls the generator and schedules the reply bubbles. It returns
// once the reply is scheduled; wait on Reply.Done for delivery.
//
// A generator failure is returned wrapped in model.ErrGenerativeCall and
// leaves memory untouched. A reply invalidated by a profile switch while
// the model was running comes back already voided.
func (e *Engine) Send(ctx context.Context, profileID, text string) (*Reply, error) {
	e.Activate(profileID)

	st, err := e.store.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	gen := e.conversationLocked(profileID).generation
	e.mu.Unlock()

	log := e.log.With().Str("profile", profileID).Str("generation", gen.String()).Logger()

	history := st.Messages
	if _, err := e.store.AppendMessage(ctx, model.Message{
		ProfileID: profileID,
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: e.now(),
	}); err != nil {
		e.warn(profileID, fmt.Errorf("%w: user message: %v", model.ErrPersistence, err))
	}

	p := prompt.Build(prompt.Input{
		Persona:       st.Persona,
		Memory:        st.Memory,
		UserMessage:   text,
		History:       history,
		HistoryBudget: e.opts.HistoryBudget,
	})

	e.setState(profileID, gen, StateAwaitingModel)
	e.listener.Typing(profileID, true)

	raw, err := e.gen.Generate(ctx, p)
	if err != nil {
		err = fmt.Errorf("%w: %v", model.ErrGenerativeCall, err)
		e.setState(profileID, gen, StateIdle)
		e.listener.Typing(profileID, false)
		e.listener.Failed(profileID, err)
		log.Error().Err(err).Msg("generate reply")
		return nil, err
	}

	r := newReply(profileID, gen)
	r.Raw = raw

	if !e.setState(profileID, gen, StateFragmenting) {
		log.Debug().Err(model.ErrContextInvalidated).Msg("reply arrived after switch")
		e.listener.Typing(profileID, false)
		r.finish(true)
		return r, nil
	}

	style := st.Persona.AttachmentStyle
	frags := fragment.Split(raw, style, e.opts.Fragment)
	if len(frags) == 1 {
		log.Debug().Int("runes", len([]rune(raw))).Msg("reply not fragmented")
	}

	e.setState(profileID, gen, StateScheduling)
	initial := e.pacer.InitialDelay(text, style, st.Persona.EmotionalTone)
	r.Schedule = e.pacer.Plan(frags, initial)

	if !e.schedule(r, text, log) {
		log.Debug().Err(model.ErrContextInvalidated).Msg("reply voided while scheduling")
		e.listener.Typing(profileID, false)
		r.finish(true)
		return r, nil
	}
	log.Debug().
		Int("fragments", len(frags)).
		Dur("initial", initial).
		Dur("done", r.Schedule.Done()).
		Msg("reply scheduled")
	return r, nil
}

// schedule registers the reply as in flight and queues its tasks. It fails
// when the generation changed in the meantime.
func (e *Engine) schedule(r *Reply, userText string, log zerolog.Logger) bool {
	profileID, gen := r.ProfileID, r.Generation

	e.mu.Lock()
	if !e.currentLocked(profileID, gen) {
		e.mu.Unlock()
		return false
	}
	c := e.convs[profileID]
	c.inflight[r] = struct{}{}
	c.state = StateDelivering
	r.Start = e.now()

	// Queued under the lock so a concurrent Activate either sees none or
	// all of the reply's tasks.
	entries := r.Schedule.Entries
	ids := make([]string, len(entries))
	for i, ent := range entries {
		e.sched.ScheduleDelivery(profileID, r.Start.Add(ent.DeliverAt), func(ctx context.Context) {
			ids[i] = e.deliver(ctx, r, ent, log)
		})
		e.sched.ScheduleDelivery(profileID, r.Start.Add(ent.SeenAt), func(ctx context.Context) {
			e.markSeen(ctx, r, ids[i], log)
		})
	}

	var last time.Duration
	if n := len(entries); n > 0 {
		last = entries[n-1].DeliverAt
	}
	e.sched.ScheduleDelivery(profileID, r.Start.Add(last), func(ctx context.Context) {
		e.listener.Typing(profileID, false)
		e.remember(ctx, r, userText, log)
	})
	e.sched.ScheduleDelivery(profileID, r.Start.Add(r.Schedule.Done()), func(ctx context.Context) {
		e.complete(r)
	})
	e.mu.Unlock()
	return true
}

func (e *Engine) deliver(ctx context.Context, r *Reply, ent pacing.Entry, log zerolog.Logger) string {
	msg := model.Message{
		ProfileID: r.ProfileID,
		Role:      model.RoleAssistant,
		Content:   ent.Fragment.Content(),
		Timestamp: e.now(),
	}

	e.mu.Lock()
	if !e.currentLocked(r.ProfileID, r.Generation) || ctx.Err() != nil {
		e.mu.Unlock()
		log.Debug().Int("fragment", ent.Index).Err(model.ErrContextInvalidated).Msg("delivery skipped")
		return ""
	}
	stored, err := e.store.AppendMessage(ctx, msg)
	e.mu.Unlock()

	if err != nil {
		e.warn(r.ProfileID, fmt.Errorf("%w: fragment %d: %v", model.ErrPersistence, ent.Index, err))
		e.listener.Delivered(msg)
		return ""
	}
	e.listener.Delivered(stored)
	return stored.ID
}

func (e *Engine) markSeen(ctx context.Context, r *Reply, messageID string, log zerolog.Logger) {
	if messageID == "" {
		return
	}
	e.mu.Lock()
	ok := e.currentLocked(r.ProfileID, r.Generation)
	e.mu.Unlock()
	if !ok {
		return
	}
	if err := e.store.MarkSeen(ctx, r.ProfileID, messageID); err != nil {
		e.warn(r.ProfileID, fmt.Errorf("%w: mark seen: %v", model.ErrPersistence, err))
		return
	}
	e.listener.Seen(r.ProfileID, messageID)
}

func (e *Engine) remember(ctx context.Context, r *Reply, userText string, log zerolog.Logger) {
	e.mu.Lock()
	if !e.currentLocked(r.ProfileID, r.Generation) || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	memory, err := e.store.UpdateMemory(ctx, r.ProfileID, func(old string) string {
		return compact.Append(old, userText, strings.TrimSpace(r.Raw), e.opts.MemoryCap)
	})
	e.mu.Unlock()
	if err != nil {
		e.warn(r.ProfileID, fmt.Errorf("%w: memory: %v", model.ErrPersistence, err))
		return
	}
	log.Debug().Int("memory_runes", len([]rune(memory))).Msg("memory updated")
}

func (e *Engine) complete(r *Reply) {
	e.mu.Lock()
	if c, ok := e.convs[r.ProfileID]; ok {
		delete(c.inflight, r)
		if len(c.inflight) == 0 && c.generation == r.Generation {
			c.state = StateIdle
		}
	}
	e.mu.Unlock()
	r.finish(false)
}

func (e *Engine) warn(profileID string, err error) {
	e.log.Warn().Str("profile", profileID).Err(err).Msg("persistence")
	e.listener.Warn(profileID, err)
}
