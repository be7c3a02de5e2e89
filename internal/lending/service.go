// Package lending implements the borrowing workflow: lending a copy to a
// user, renewing, returning and the overdue sweep. Every multi-row change runs
// in one transaction so the copy flag, the borrowing row and the user's
// counter never disagree.
package lending

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mediaLending/internal/apperr"
	"mediaLending/internal/config"
	"mediaLending/internal/events"
	"mediaLending/internal/metrics"
	"mediaLending/repository"
)

// Policy holds the lending limits.
type Policy struct {
	MaxActiveBorrowings int
	LoanPeriod          time.Duration
	RenewalPeriod       time.Duration
	MaxRenewals         int // 0 means renewals are not capped
}

// DefaultPolicy: 5 held items, 14 day loans, 14 day renewals, no renewal cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxActiveBorrowings: 5,
		LoanPeriod:          14 * 24 * time.Hour,
		RenewalPeriod:       14 * 24 * time.Hour,
	}
}

// PolicyFromConfig builds a Policy from the lending section of the config.
func PolicyFromConfig(c config.LendingConfig) Policy {
	p := DefaultPolicy()
	if c.MaxActiveBorrowings > 0 {
		p.MaxActiveBorrowings = c.MaxActiveBorrowings
	}
	if c.LoanPeriod > 0 {
		p.LoanPeriod = c.LoanPeriod
	}
	if c.RenewalPeriod > 0 {
		p.RenewalPeriod = c.RenewalPeriod
	}
	if c.MaxRenewals > 0 {
		p.MaxRenewals = c.MaxRenewals
	}
	return p
}

// Service runs the borrowing workflow over a repository.Store.
type Service struct {
	store     *repository.Store
	policy    Policy
	now       func() time.Time
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	publisher events.Publisher
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher sets where domain events go after a commit.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService creates a Service. Without options it logs nothing, publishes
// nothing and records metrics into a private registry.
func NewService(store *repository.Store, policy Policy, opts ...Option) *Service {
	s := &Service{
		store:     store,
		policy:    policy,
		now:       time.Now,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("mediaLending/internal/lending"),
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// Policy returns the limits the service enforces.
func (s *Service) Policy() Policy { return s.policy }

// clock returns the current time the way it is persisted: UTC, whole seconds.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "lending."+name)
}

// finish classifies err, records it on the span and in the rejection counter,
// and ends the span. Domain errors pass through; anything else becomes an
// internal error.
func (s *Service) finish(span trace.Span, op string, err error) error {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		err = apperr.Internal(op+" failed", err)
		s.logger.Error("lending operation failed", zap.String("operation", op), zap.Error(err))
	}
	kind := apperr.KindOf(err)
	if kind != apperr.KindInternal {
		s.metrics.LendingRejections.WithLabelValues(op, kind.String()).Inc()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, kind.String())
	return err
}

// publish emits e after a successful commit. Failures are logged only: the
// borrowing change already happened and must not be reported as failed.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish lending event",
			zap.String("type", string(e.Type)),
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
	}
}
