// Package worker consumes decision events and mirrors them for monitoring.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/metrics"
)

// DecisionCounter records a decision in the rate counters.
type DecisionCounter interface {
	Record(ctx context.Context, d domain.Decision) (int64, error)
}

// Worker mirrors decision events from the EventBus into the repository and
// the decision counters. Either sink may be nil.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	counter DecisionCounter

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new mirror worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, counter DecisionCounter) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		counter: counter,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes the mirror to every decision and the escalation handler
// to BLOCK decisions.
func (w *Worker) Start() error {
	handlers := []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicDecision, w.handleMessage},
		{domain.TopicBlock, w.handleEscalation},
	}

	for _, h := range handlers {
		sub, err := w.bus.Subscribe(w.ctx, h.topic, h.handler)
		if err != nil {
			_ = w.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", h.topic, err)
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	slog.Info("mirror worker started",
		"topics", []string{domain.TopicDecision, domain.TopicBlock},
		"repository", w.repo != nil,
	)
	return nil
}

// errMalformed marks events that can never be processed.
var errMalformed = errors.New("malformed decision event")

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	err := w.process(ctx, msg)
	switch {
	case err == nil:
		metrics.MirroredRecordsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, errMalformed):
		metrics.MirroredRecordsTotal.WithLabelValues("malformed").Inc()
	default:
		metrics.MirroredRecordsTotal.WithLabelValues("error").Inc()
	}
	return err
}

// process handles one decision event.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	event, err := decodeEvent(msg)
	if err != nil {
		return err
	}

	var errs []error

	if w.counter != nil {
		if _, err := w.counter.Record(ctx, event.Record.Decision); err != nil {
			errs = append(errs, err)
		}
	}

	if w.repo != nil {
		if err := w.repo.SaveRecord(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("failed to mirror event %s: %w", event.ID, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	slog.Debug("decision mirrored",
		"event_id", event.ID,
		"trace_id", event.TraceID,
		"decision", event.Record.Decision,
	)
	return nil
}

// handleEscalation raises a BLOCK decision for operator follow-up.
func (w *Worker) handleEscalation(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	event, err := decodeEvent(msg)
	if err != nil {
		return err
	}

	metrics.BlockEscalationsTotal.Inc()
	slog.WarnContext(ctx, "transaction blocked",
		"event_id", event.ID,
		"trace_id", event.TraceID,
		"fraud_probability", event.Record.Probability,
		"timestamp", event.Record.Timestamp,
	)
	return nil
}

func decodeEvent(msg *domain.Message) (*domain.DecisionEvent, error) {
	var event domain.DecisionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("%w: message %s: %v", errMalformed, msg.ID, err)
	}
	if event.ID == "" || !event.Record.Decision.Valid() {
		return nil, fmt.Errorf("%w: message %s: missing id or unknown decision %q",
			errMalformed, msg.ID, event.Record.Decision)
	}
	return &event, nil
}

// Stop unsubscribes and waits for in-flight events.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()

	slog.Info("mirror worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
