// ABOUTME: Responder composes rule matching, the reply gate, recency caches and chat settings
// ABOUTME: It is the single entry point transports and the HTTP API call into

package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-responder/internal/autoreply"
	"github.com/2389/coven-responder/internal/chatconfig"
	"github.com/2389/coven-responder/internal/recency"
	"github.com/2389/coven-responder/internal/store"
)

// ErrInvariant marks a state the code guarantees cannot happen, such as a rule
// missing right after it was added. Callers should treat it as a bug.
var ErrInvariant = errors.New("internal invariant violated")

// Responder is safe for concurrent use.
type Responder struct {
	store   store.Store
	rules   *autoreply.Set
	gate    *autoreply.Gate
	recency *recency.Cache
	configs *chatconfig.Cache
	logger  *slog.Logger

	// regMu serializes RegisterRule so the duplicate check, the store write
	// and the in-memory add happen as one step.
	regMu sync.Mutex
}

type options struct {
	logger   *slog.Logger
	defaults chatconfig.Defaults
	draw     func() float64
	pick     func(n int) int
}

// Option configures a Responder.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDefaults sets the settings used for chats that never stored their own.
func WithDefaults(d chatconfig.Defaults) Option {
	return func(o *options) { o.defaults = d }
}

// WithRandom replaces the random sources of the gate and of recency selection.
// Either may be nil to keep the default.
func WithRandom(draw func() float64, pick func(n int) int) Option {
	return func(o *options) {
		o.draw = draw
		o.pick = pick
	}
}

// New loads every stored rule and builds the per-chat registries. Rules whose
// pattern no longer compiles are logged and skipped.
func New(ctx context.Context, st store.Store, opts ...Option) (*Responder, error) {
	o := options{
		logger:   slog.Default(),
		defaults: chatconfig.DefaultDefaults(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "responder")

	stored, err := st.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	set, err := autoreply.NewSet(nil)
	if err != nil {
		return nil, err
	}
	loaded := 0
	for _, sr := range stored {
		rule, err := fromStored(sr)
		if err == nil {
			err = set.Add(rule)
		}
		if err != nil {
			logger.Warn("skipping stored rule", "chat", sr.ChatID, "name", sr.Name, "error", err)
			continue
		}
		loaded++
	}

	cacheOpts := []recency.Option{recency.WithLogger(o.logger)}
	if o.pick != nil {
		cacheOpts = append(cacheOpts, recency.WithPicker(o.pick))
	}

	logger.Info("responder ready", "rules", loaded, "skipped", len(stored)-loaded)

	return &Responder{
		store:   st,
		rules:   set,
		gate:    autoreply.NewGate(o.draw),
		recency: recency.NewCache(st, cacheOpts...),
		configs: chatconfig.NewCache(st, o.defaults),
		logger:  logger,
	}, nil
}

// Dispatch matches text against the chat's rules and runs the matches through
// the gate. forceFire is set when the message replies to the bot.
func (r *Responder) Dispatch(ctx context.Context, chatID, text string, forceFire bool) (autoreply.Outcome, error) {
	matches := r.rules.Match(chatID, text)
	if len(matches) == 0 {
		return autoreply.Outcome{}, nil
	}

	cfg, err := r.configs.Get(ctx, chatID)
	if err != nil {
		return autoreply.Outcome{}, err
	}

	out := r.gate.Evaluate(matches, cfg.FireProbability, forceFire)
	r.logger.Debug("dispatched",
		"chat", chatID,
		"matches", len(matches),
		"text", out.HasText(),
		"item", out.HasItem(),
		"force", forceFire,
	)
	return out, nil
}

// RegisterRule compiles and stores a new rule. It fails with
// autoreply.ErrInvalidPattern or autoreply.ErrDuplicateName without changing
// anything; a storage failure also leaves the registry unchanged.
func (r *Responder) RegisterRule(ctx context.Context, chatID, name, pattern string, response autoreply.Response) error {
	rule, err := autoreply.NewRule(chatID, name, pattern, response)
	if err != nil {
		return err
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()

	if r.rules.Has(chatID, name) {
		return fmt.Errorf("%w: %s", autoreply.ErrDuplicateName, name)
	}

	outcome, err := r.store.UpsertRule(ctx, toStored(rule))
	if errors.Is(err, store.ErrDuplicateRule) || outcome == store.UpsertRejectedDuplicate {
		return fmt.Errorf("%w: %s", autoreply.ErrDuplicateName, name)
	}
	if err != nil {
		return fmt.Errorf("storing rule %s: %w", name, err)
	}

	if err := r.rules.Add(rule); err != nil {
		return fmt.Errorf("%w: adding stored rule %s: %v", ErrInvariant, name, err)
	}
	if !r.rules.Has(chatID, name) {
		return fmt.Errorf("%w: rule %s missing after add", ErrInvariant, name)
	}

	r.logger.Info("rule registered", "chat", chatID, "name", name, "pattern", pattern)
	return nil
}

// NoteItemPosted records item in its category and returns a different item
// from that category's history, if there is one.
func (r *Responder) NoteItemPosted(ctx context.Context, chatID, categoryKey string, item store.ItemRecord) (store.ItemRecord, bool, error) {
	cfg, err := r.configs.Get(ctx, chatID)
	if err != nil {
		return store.ItemRecord{}, false, err
	}
	return r.recency.SelectForCategory(ctx, chatID, categoryKey, item, cfg.RecencyCapacity)
}

// Echo is NoteItemPosted followed by the gate: the candidate is returned only
// if it fires at the chat's probability. Replying to the bot does not force an
// echo. The item is recorded either way.
func (r *Responder) Echo(ctx context.Context, chatID, categoryKey string, item store.ItemRecord) (store.ItemRecord, bool, error) {
	candidate, ok, err := r.NoteItemPosted(ctx, chatID, categoryKey, item)
	if err != nil || !ok {
		return store.ItemRecord{}, false, err
	}

	cfg, err := r.configs.Get(ctx, chatID)
	if err != nil {
		return store.ItemRecord{}, false, err
	}
	if !r.gate.Fires(cfg.FireProbability) {
		return store.ItemRecord{}, false, nil
	}
	return candidate, true, nil
}

// Config returns the chat's effective settings.
func (r *Responder) Config(ctx context.Context, chatID string) (chatconfig.Config, error) {
	return r.configs.Get(ctx, chatID)
}

// SetFireProbability stores a new probability. Range checks are the caller's job.
func (r *Responder) SetFireProbability(ctx context.Context, chatID string, value float64) error {
	return r.configs.SetFireProbability(ctx, chatID, value)
}

// SetRecencyCapacity stores a new item history length. The new length applies
// from the next recorded item on.
func (r *Responder) SetRecencyCapacity(ctx context.Context, chatID string, capacity int) error {
	return r.configs.SetRecencyCapacity(ctx, chatID, capacity)
}

// UpdateConfig stores several settings at once. Either all of them change or none does.
func (r *Responder) UpdateConfig(ctx context.Context, chatID string, update store.SettingsUpdate) error {
	return r.configs.Update(ctx, chatID, update)
}

// Rules returns the chat's rules in registration order.
func (r *Responder) Rules(chatID string) []*autoreply.Rule {
	return r.rules.Rules(chatID)
}
