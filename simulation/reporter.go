package simulation

import (
	"context"
	stderrors "errors"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/message"
	"github.com/c360/simstation/metric"
)

// ErrorReporter receives internal failures that are not part of normal control flow,
// such as an outbound message that could not be built or delivered.
type ErrorReporter interface {
	ReportError(ctx context.Context, epoch int, err error)
}

// Default budget for error Status publications.
const (
	DefaultErrorRate  = rate.Limit(10)
	DefaultErrorBurst = 20
)

// StatusReporter publishes Status messages on behalf of a participant: ready when an
// epoch is finished and error when something was reported. Error publications are
// rate limited; every reported error is still logged and counted.
type StatusReporter struct {
	name       string
	registry   *message.Registry
	publisher  Publisher
	ids        *Generator
	logger     *slog.Logger
	metrics    *metric.Metrics
	readyTopic string
	errorTopic string

	errorLimiter *rate.Limiter
}

// NewStatusReporter creates a reporter publishing through pub with envelopes from ids.
// metrics and logger may be nil.
func NewStatusReporter(
	reg *message.Registry, pub Publisher, ids *Generator, metrics *metric.Metrics, logger *slog.Logger,
) *StatusReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{
		name:       ids.Source(),
		registry:   reg,
		publisher:  pub,
		ids:        ids,
		logger:     logger,
		metrics:    metrics,
		readyTopic: TopicStatusReady,
		errorTopic: TopicStatusError,

		errorLimiter: rate.NewLimiter(DefaultErrorRate, DefaultErrorBurst),
	}
}

// LimitErrors replaces the error Status budget. Call it before the reporter is used.
func (r *StatusReporter) LimitErrors(limit rate.Limit, burst int) {
	r.errorLimiter = rate.NewLimiter(limit, burst)
}

// Ready publishes a ready Status for epoch, triggered by triggeringIDs.
func (r *StatusReporter) Ready(ctx context.Context, epoch int, triggeringIDs []string) error {
	return r.publish(ctx, r.readyTopic, epoch, triggeringIDs, message.Values{AttrValue: StatusReady})
}

// ReportError logs err and publishes an error Status describing it. A failure to
// publish is logged and otherwise dropped.
func (r *StatusReporter) ReportError(ctx context.Context, epoch int, err error) {
	if err == nil {
		return
	}
	r.logger.Error("Participant error",
		"component", r.name,
		"epoch", epoch,
		"class", errors.Classify(err).String(),
		"error", err)
	r.metrics.RecordError(r.name, errors.Classify(err).String())

	if !r.errorLimiter.Allow() {
		r.logger.Debug("Error status suppressed by rate limit", "component", r.name, "epoch", epoch)
		return
	}

	values := message.Values{AttrValue: StatusError, AttrDescription: err.Error()}
	if pubErr := r.publish(ctx, r.errorTopic, epoch, nil, values); pubErr != nil {
		r.logger.Error("Failed to publish error status",
			"component", r.name,
			"epoch", epoch,
			"error", pubErr)
	}
}

func (r *StatusReporter) publish(
	ctx context.Context, topic string, epoch int, triggeringIDs []string, values message.Values,
) error {
	data, err := r.registry.EncodeValues(TypeStatus, r.ids.Envelope(epoch, triggeringIDs), values)
	if err != nil {
		return errors.WrapInvalid(err, "StatusReporter", "publish", "encode status")
	}
	if err := r.publisher.Publish(ctx, topic, data); err != nil {
		var pubErr *PublishError
		if stderrors.As(err, &pubErr) {
			return err
		}
		return &PublishError{Topic: topic, Err: err}
	}
	r.metrics.RecordMessagePublished(r.name, topic)
	return nil
}
