// Package scoring orchestrates one scoring request:
// validate → score → decide → log → respond.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fraudscore/internal/decision"
	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
	"github.com/opensource-finance/fraudscore/internal/metrics"
	"github.com/opensource-finance/fraudscore/internal/model"
)

// Stage is a state of the per-request state machine.
type Stage string

const (
	StageReceived  Stage = "RECEIVED"
	StageValidated Stage = "VALIDATED"
	StageScored    Stage = "SCORED"
	StageDecided   Stage = "DECIDED"
	StageLogged    Stage = "LOGGED"
	StageResponded Stage = "RESPONDED"
	StageFailed    Stage = "FAILED"
)

var tracer = otel.Tracer("fraudscore-scoring")

// Failure is the terminal FAILED state. Stage is the last state reached
// before the failure; Err is a *domain.ContractError or *domain.ScoringFailure.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is the RESPONDED payload.
type Result struct {
	Probability float64         `json:"fraud_probability"`
	Decision    domain.Decision `json:"decision"`

	// Record is the audit row as persisted, or as attempted when AuditErr is set.
	Record domain.AuditRecord `json:"-"`

	// AuditErr is set when the record could not be persisted. The decision stands.
	AuditErr error `json:"-"`
}

// Options are the immutable collaborators of a Service.
type Options struct {
	Schema *features.Schema
	Scorer model.Scorer
	Policy domain.ThresholdPolicy
	Log    domain.AuditLog

	// Bus receives a DecisionEvent per logged decision. Optional.
	Bus domain.EventBus

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service scores transactions. It holds no per-request state and is safe for concurrent use.
type Service struct {
	schema *features.Schema
	scorer model.Scorer
	policy domain.ThresholdPolicy
	log    domain.AuditLog
	bus    domain.EventBus
	clock  func() time.Time
}

// New validates opts and builds a Service. Any error is a *domain.ConfigurationError.
func New(opts Options) (*Service, error) {
	if opts.Schema == nil {
		return nil, &domain.ConfigurationError{Field: "schema", Reason: "feature schema is required"}
	}
	if opts.Scorer == nil {
		return nil, &domain.ConfigurationError{Field: "model", Reason: "scorer is required"}
	}
	if opts.Log == nil {
		return nil, &domain.ConfigurationError{Field: "audit", Reason: "audit log is required"}
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		schema: opts.Schema,
		scorer: opts.Scorer,
		policy: opts.Policy,
		log:    opts.Log,
		bus:    opts.Bus,
		clock:  clock,
	}, nil
}

// Policy returns the configured thresholds.
func (s *Service) Policy() domain.ThresholdPolicy {
	return s.policy
}

// Score runs one request through the state machine. On failure the returned
// error is a *Failure and no decision is produced.
func (s *Service) Score(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "scoring.Score",
		trace.WithAttributes(attribute.Int("features.count", len(input))),
	)
	defer span.End()
	defer func() {
		metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	}()

	stage := StageReceived
	span.AddEvent(string(stage))

	vec, err := s.schema.Validate(input)
	if err != nil {
		return nil, s.fail(ctx, span, stage, err)
	}
	stage = StageValidated
	span.AddEvent(string(stage))

	p, err := s.scorer.Score(ctx, vec)
	if err != nil {
		var sf *domain.ScoringFailure
		if !errors.As(err, &sf) {
			err = &domain.ScoringFailure{Reason: "model error", Err: err}
		}
		return nil, s.fail(ctx, span, stage, err)
	}
	stage = StageScored
	span.AddEvent(string(stage), trace.WithAttributes(attribute.Float64("fraud.probability", p)))
	metrics.FraudProbability.Observe(p)

	d := decision.Decide(p, s.policy)
	stage = StageDecided
	span.AddEvent(string(stage), trace.WithAttributes(attribute.String("fraud.decision", string(d))))

	rec := domain.AuditRecord{
		Timestamp:   s.clock(),
		Probability: p,
		Decision:    d,
	}
	result := &Result{
		Probability: domain.RoundProbability(p),
		Decision:    d,
		Record:      rec,
	}

	// Once decided, the record and its event must outlive a disconnected client.
	detached := context.WithoutCancel(ctx)

	persisted, err := s.log.Append(detached, rec)
	if err != nil {
		// Audit durability never blocks the decision.
		result.AuditErr = err
		metrics.AuditWriteErrorsTotal.Inc()
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to append audit record",
			"decision", d,
			"fraud_probability", result.Probability,
			"error", err,
		)
	} else {
		result.Record = persisted
		span.AddEvent(string(StageLogged))

		// Only rows that made it into the log are mirrored downstream.
		s.publish(detached, span, persisted)
	}

	metrics.DecisionsTotal.WithLabelValues(string(d)).Inc()
	span.AddEvent(string(StageResponded))

	level := slog.LevelDebug
	if decision.ShouldEscalate(d) {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "transaction scored",
		"decision", d,
		"fraud_probability", result.Probability,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, stage Stage, err error) error {
	metrics.FailuresTotal.WithLabelValues(string(stage)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent(string(StageFailed))

	var cerr *domain.ContractError
	if errors.As(err, &cerr) {
		slog.DebugContext(ctx, "feature contract violated",
			"missing", cerr.Missing,
			"unexpected", cerr.Unexpected,
			"non_numeric", cerr.NonNumeric,
		)
	} else {
		slog.ErrorContext(ctx, "scoring failed", "stage", stage, "error", err)
	}

	return &Failure{Stage: stage, Err: err}
}

// publish emits the decision event. Bus problems are reported, never returned.
func (s *Service) publish(ctx context.Context, span trace.Span, rec domain.AuditRecord) {
	if s.bus == nil {
		return
	}

	event := domain.DecisionEvent{
		ID:     uuid.New().String(),
		Record: rec,
	}
	if sc := span.SpanContext(); sc.TraceID().IsValid() {
		event.TraceID = sc.TraceID().String()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal decision event", "error", err)
		return
	}

	topics := []string{domain.TopicDecision}
	if rec.Decision == domain.DecisionBlock {
		topics = append(topics, domain.TopicBlock)
	}
	for _, topic := range topics {
		if err := s.bus.Publish(ctx, topic, payload); err != nil {
			metrics.EventPublishErrorsTotal.Inc()
			slog.ErrorContext(ctx, "failed to publish decision event",
				"topic", topic,
				"event_id", event.ID,
				"error", err,
			)
		}
	}
}

// Introspect returns liveness and configuration state. It has no side effects.
func (s *Service) Introspect() domain.Health {
	return domain.Health{
		Status:          "OK",
		ModelLoaded:     s.scorer != nil,
		ReviewThreshold: s.policy.Review,
		BlockThreshold:  s.policy.Block,
	}
}

// ModelKind reports which kind of model artifact is loaded.
func (s *Service) ModelKind() string {
	return s.scorer.Kind()
}
