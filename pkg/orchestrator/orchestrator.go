package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/recorder"
	"github.com/zen-systems/nexus/pkg/registry"
)

// Recorder persists a completed exchange. Record must return promptly; the
// orchestrator does not wait for persistence.
type Recorder interface {
	Record(ctx context.Context, ex recorder.Exchange)
}

// Orchestrator resolves a model, dispatches to its provider adapter with
// bounded retries and meters the reply.
type Orchestrator struct {
	registry *registry.Registry
	adapters map[registry.ProviderKind]adapter.Adapter
	retry    RetryPolicy
	timeouts map[registry.Mode]time.Duration
	recorder Recorder
	logger   *zap.Logger
	jitter   func() float64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		if p.MaxRetries < 0 {
			p.MaxRetries = 0
		}
		o.retry = p
	}
}

// WithTimeouts overrides per-attempt timeouts for the given modes.
func WithTimeouts(t map[registry.Mode]time.Duration) Option {
	return func(o *Orchestrator) {
		for mode, d := range t {
			if d > 0 {
				o.timeouts[mode] = d
			}
		}
	}
}

// WithRecorder sets the sink that persists completed exchanges.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithJitterSource replaces the random source used for backoff jitter.
// fn must return values in [0,1).
func WithJitterSource(fn func() float64) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.jitter = fn
		}
	}
}

// New creates an orchestrator over reg. At most one adapter per provider
// kind is accepted.
func New(reg *registry.Registry, adapters []adapter.Adapter, opts ...Option) (*Orchestrator, error) {
	if reg == nil {
		return nil, errors.New("orchestrator: registry is required")
	}
	o := &Orchestrator{
		registry: reg,
		adapters: make(map[registry.ProviderKind]adapter.Adapter, len(adapters)),
		retry:    DefaultRetryPolicy(),
		timeouts: DefaultTimeouts(),
		logger:   zap.NewNop(),
		jitter:   defaultJitterSource,
	}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, dup := o.adapters[a.Kind()]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate adapter for %s", a.Kind())
		}
		o.adapters[a.Kind()] = a
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Models lists the descriptors whose provider has an adapter configured.
func (o *Orchestrator) Models() []registry.ModelDescriptor {
	all := o.registry.All()
	out := make([]registry.ModelDescriptor, 0, len(all))
	for _, m := range all {
		if _, ok := o.adapters[m.Provider]; ok {
			out = append(out, m)
		}
	}
	return out
}

// ComputeFlatCost returns the credit cost of one flat-rate unit.
func (o *Orchestrator) ComputeFlatCost(unit registry.UnitKind, tier string) (int64, error) {
	return pricing.ComputeFlat(o.registry, unit, tier)
}

// Orchestrate runs one chat request to completion. On success the response
// carries a priced usage record. Failures are returned as *Failure and never
// carry usage.
func (o *Orchestrator) Orchestrate(ctx context.Context, req adapter.Request) (*adapter.Response, error) {
	start := time.Now()
	log := o.logger.With(zap.String("model", req.Model), zap.String("mode", string(req.Mode)))

	fail := func(state State, kind Kind, attempts int, err error) (*adapter.Response, error) {
		f := &Failure{State: state, Kind: kind, Model: req.Model, Attempts: attempts, Err: err}
		log.Warn("request failed",
			zap.String("state", string(state)),
			zap.String("kind", string(kind)),
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, f
	}

	if err := ctx.Err(); err != nil {
		return fail(StateResolving, KindCancelled, 0, err)
	}
	if err := req.Validate(); err != nil {
		return fail(StateResolving, KindInvalidRequest, 0, err)
	}
	model, err := o.registry.Resolve(req.Model)
	if err != nil {
		return fail(StateResolving, KindUnknownModel, 0, err)
	}

	log.Debug("dispatching", zap.String("provider", string(model.Provider)))
	a, ok := o.adapters[model.Provider]
	if !ok {
		return fail(StateDispatching, KindInvalidRequest, 0,
			fmt.Errorf("no adapter configured for provider %s", model.Provider))
	}
	wire, err := a.TranslateRequest(req, model)
	if err != nil {
		return fail(StateDispatching, kindFromError(err), 0, err)
	}

	raw, attempts, err := o.invoke(ctx, log, a, wire)
	if err != nil {
		if ctx.Err() != nil {
			return fail(StateAwaitingUpstream, KindCancelled, attempts, ctx.Err())
		}
		return fail(StateAwaitingUpstream, kindFromError(err), attempts, err)
	}

	resp := a.ParseResponse(raw, wire)
	resp.Model = model.ID
	resp.Usage = pricing.Compute(resp.Usage, model)
	if resp.Created.IsZero() {
		resp.Created = time.Now().UTC()
	}

	log.Info("request completed",
		zap.String("provider", string(model.Provider)),
		zap.String("finish_reason", string(resp.FinishReason)),
		zap.Int("attempts", attempts),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int64("cost_credits", resp.Usage.CostCredits),
		zap.Bool("estimated", resp.Usage.Estimated),
		zap.Duration("elapsed", time.Since(start)))

	if o.recorder != nil && req.ConversationID != "" && req.OwnerID != "" {
		turn, _ := req.CurrentUserTurn()
		o.recorder.Record(context.WithoutCancel(ctx), recorder.Exchange{
			ConversationID: req.ConversationID,
			OwnerID:        req.OwnerID,
			Model:          model.ID,
			Mode:           wire.Mode,
			UserTurn:       turn,
			Reply:          resp,
		})
	}
	return &resp, nil
}

// invoke calls the adapter until it succeeds, fails permanently or the
// retry budget is spent. It returns the number of attempts made.
func (o *Orchestrator) invoke(ctx context.Context, log *zap.Logger, a adapter.Adapter, wire *adapter.WireRequest) (*adapter.RawResult, int, error) {
	timeout := o.timeoutFor(wire.Mode)
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= o.retry.MaxRetries; attempt++ {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		raw, err := a.Invoke(attemptCtx, wire)
		cancel()
		if err == nil {
			return raw, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		lastErr = err
		if !adapter.IsTransient(err) || attempt == o.retry.MaxRetries {
			break
		}

		backoff := o.retry.delay(attempt, o.jitter())
		log.Warn("retrying upstream call",
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, attempts, err
		}
	}
	return nil, attempts, lastErr
}

func (o *Orchestrator) timeoutFor(mode registry.Mode) time.Duration {
	if d, ok := o.timeouts[mode]; ok && d > 0 {
		return d
	}
	return o.timeouts[registry.ModeMedium]
}
