package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrDispatchFailure wraps any error returned by the notifier.
var ErrDispatchFailure = errors.New("alert dispatch failed")

// Outcome describes what happened to a batch at flush time.
type Outcome int

const (
	// OutcomeEmpty means nothing was queued, so nothing was sent.
	OutcomeEmpty Outcome = iota
	// OutcomeSuppressed means alerts were queued but the gate was disarmed.
	OutcomeSuppressed
	// OutcomeSent means the message was handed to the notifier successfully.
	OutcomeSent
	// OutcomeFailed means the notifier returned an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeSent:
		return "sent"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dispatcher sends at most one message per batch, subject to the gate.
type Dispatcher struct {
	gate     *Gate
	notifier Notifier
	logger   zerolog.Logger
}

// NewDispatcher wires a dispatcher. A nil notifier behaves as a sink that
// is never armed.
func NewDispatcher(gate *Gate, notifier Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		gate:     gate,
		notifier: notifier,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Flush formats the batch and, when armed, sends it exactly once.
func (d *Dispatcher) Flush(ctx context.Context, b *Batch) (Outcome, error) {
	if b.Empty() {
		return OutcomeEmpty, nil
	}

	body := b.Message()
	if !d.gate.Armed() || d.notifier == nil {
		d.logger.Info().Int("alerts", len(b.queued)).Str("body", body).Msg("alerts queued while disarmed; not dispatched")
		return OutcomeSuppressed, nil
	}

	if err := d.notifier.Send(ctx, body); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %w", ErrDispatchFailure, err)
	}

	d.logger.Info().Int("alerts", len(b.queued)).Msg("alert message dispatched")
	return OutcomeSent, nil
}
