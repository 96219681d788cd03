package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"identity-core/internal/logging"
	mfadomain "identity-core/internal/mfa/domain"
)

const defaultSendTimeout = 10 * time.Second

// Router dispatches codes to the sender registered for their factor.
type Router struct {
	senders map[mfadomain.FactorType]Sender
	dev     *DevStore
	timeout time.Duration
	logger  *zap.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithSender registers s for factor.
func WithSender(factor mfadomain.FactorType, s Sender) RouterOption {
	return func(r *Router) { r.senders[factor] = s }
}

// WithDevStore routes every code into store instead of delivering it.
func WithDevStore(store *DevStore) RouterOption {
	return func(r *Router) { r.dev = store }
}

// WithSendTimeout bounds each background send. Default 10s.
func WithSendTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.timeout = d }
}

// NewRouter returns a Router.
func NewRouter(logger *zap.Logger, opts ...RouterOption) *Router {
	r := &Router{
		senders: map[mfadomain.FactorType]Sender{},
		timeout: defaultSendTimeout,
		logger:  logging.OrNop(logger).Named("notification"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify dispatches msg without blocking the caller. The send runs detached from ctx's
// cancellation with its own timeout; failures are logged without the code.
func (r *Router) Notify(ctx context.Context, msg OneTimeCode) {
	if r.dev != nil {
		_ = r.dev.Send(ctx, msg)
		return
	}
	s, ok := r.senders[msg.Factor]
	if !ok {
		r.logger.Warn("no notification channel", zap.String("factor", string(msg.Factor)),
			zap.String("principal_id", msg.PrincipalID), zap.Error(ErrNoChannel))
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := s.Send(sendCtx, msg); err != nil {
			r.logger.Warn("one-time code delivery failed",
				zap.String("factor", string(msg.Factor)),
				zap.String("principal_id", msg.PrincipalID),
				zap.String("challenge_id", msg.ChallengeID),
				zap.Error(err))
		}
	}()
}
