// Package recorder persists completed chat exchanges off the request path.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/conversation"
	"github.com/zen-systems/nexus/pkg/registry"
)

// DefaultTimeout bounds one detached persistence run.
const DefaultTimeout = 10 * time.Second

// Exchange is one answered turn ready to be stored.
type Exchange struct {
	ConversationID string
	OwnerID        string
	Model          string
	Mode           registry.Mode
	UserTurn       adapter.Message
	Reply          adapter.Response
}

// Debiter charges the owner for a metered exchange.
type Debiter interface {
	Debit(ctx context.Context, userID string, credits int64, reason string) error
}

// PersistenceFailure reports a step of Record that did not complete. The
// caller's response has already been delivered when it is emitted.
type PersistenceFailure struct {
	ConversationID string
	OwnerID        string
	Op             string
	Err            error
}

func (f *PersistenceFailure) Error() string {
	return fmt.Sprintf("persist %s for conversation %s: %v", f.Op, f.ConversationID, f.Err)
}

func (f *PersistenceFailure) Unwrap() error {
	return f.Err
}

// Recorder writes exchanges to a conversation repository.
type Recorder struct {
	repo    conversation.Repository
	debiter Debiter
	logger  *zap.Logger
	timeout time.Duration

	errs chan *PersistenceFailure
	wg   sync.WaitGroup
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithDebiter charges each recorded reply's credits to its owner.
func WithDebiter(d Debiter) Option {
	return func(r *Recorder) {
		r.debiter = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTimeout overrides the per-record timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithErrorBuffer sets the capacity of the failure channel. Failures that
// do not fit are logged and dropped.
func WithErrorBuffer(n int) Option {
	return func(r *Recorder) {
		if n >= 0 {
			r.errs = make(chan *PersistenceFailure, n)
		}
	}
}

// New creates a recorder over repo.
func New(repo conversation.Repository, opts ...Option) *Recorder {
	r := &Recorder{
		repo:    repo,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
		errs:    make(chan *PersistenceFailure, 64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Errors returns the channel on which persistence failures are reported.
func (r *Recorder) Errors() <-chan *PersistenceFailure {
	return r.errs
}

// Record persists ex in the background and returns immediately. Cancelling
// ctx does not abort the write; it runs under its own timeout.
func (r *Recorder) Record(ctx context.Context, ex Exchange) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := r.Persist(runCtx, ex); err != nil {
			var f *PersistenceFailure
			if errors.As(err, &f) {
				r.report(f)
			}
		}
	}()
}

// Wait blocks until every pending Record has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Persist stores ex synchronously: it creates the conversation when absent,
// appends the user turn and the assistant reply with its usage, then debits
// the owner when a debiter is configured.
func (r *Recorder) Persist(ctx context.Context, ex Exchange) error {
	log := r.logger.With(
		zap.String("conversation_id", ex.ConversationID),
		zap.String("model", ex.Model))
	fail := func(op string, err error) error {
		return &PersistenceFailure{ConversationID: ex.ConversationID, OwnerID: ex.OwnerID, Op: op, Err: err}
	}

	if ex.ConversationID == "" || ex.OwnerID == "" {
		return fail("validate", errors.New("conversation id and owner are required"))
	}

	if _, err := r.repo.Get(ctx, ex.OwnerID, ex.ConversationID); err != nil {
		if !errors.Is(err, conversation.ErrNotFound) {
			return fail("load", err)
		}
		c := conversation.New(ex.ConversationID, ex.OwnerID, ex.Model, ex.Mode)
		if err := r.repo.Create(ctx, c); err != nil && !errors.Is(err, conversation.ErrAlreadyExists) {
			return fail("create", err)
		}
		log.Debug("conversation created")
	}

	if ex.UserTurn.Role == adapter.RoleUser && ex.UserTurn.Content != "" {
		msg := conversation.StoredMessage{Role: adapter.RoleUser, Content: ex.UserTurn.Content}
		if err := r.repo.AppendMessage(ctx, ex.OwnerID, ex.ConversationID, msg); err != nil {
			return fail("append_user", err)
		}
	}

	usage := ex.Reply.Usage
	reply := conversation.StoredMessage{
		Role:      adapter.RoleAssistant,
		Content:   ex.Reply.Text,
		Model:     ex.Model,
		Usage:     &usage,
		CreatedAt: ex.Reply.Created,
	}
	if err := r.repo.AppendMessage(ctx, ex.OwnerID, ex.ConversationID, reply); err != nil {
		return fail("append_assistant", err)
	}

	if r.debiter != nil && usage.CostCredits > 0 {
		reason := fmt.Sprintf("chat:%s:%s", ex.Model, ex.ConversationID)
		if err := r.debiter.Debit(ctx, ex.OwnerID, usage.CostCredits, reason); err != nil {
			return fail("debit", err)
		}
	}

	log.Debug("exchange recorded", zap.Int64("cost_credits", usage.CostCredits))
	return nil
}

func (r *Recorder) report(f *PersistenceFailure) {
	r.logger.Error("persistence failure",
		zap.String("conversation_id", f.ConversationID),
		zap.String("op", f.Op),
		zap.Error(f.Err))
	select {
	case r.errs <- f:
	default:
		r.logger.Warn("persistence failure dropped, error channel full",
			zap.String("conversation_id", f.ConversationID))
	}
}
