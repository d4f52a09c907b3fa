// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/gestalt/pkg/errors"
)

// CoreMetrics tracks the runtime's operational counters.
type CoreMetrics struct {
	// ticks counts tick-loop iterations
	ticks metric.Int64Counter

	// dispatches counts transform dispatches by id and outcome
	dispatches metric.Int64Counter

	// invocations counts skill invocations by name and outcome
	invocations metric.Int64Counter

	// evictions counts experience records evicted from the bounded store
	evictions metric.Int64Counter

	// heals counts self-heal passes by trigger
	heals metric.Int64Counter

	// evolutions counts evolution attempts by outcome
	evolutions metric.Int64Counter

	// heartbeatFailures counts failed outbound heartbeat deliveries
	heartbeatFailures metric.Int64Counter
}

// NewCoreMetrics creates the runtime metrics set with OTEL meters.
func NewCoreMetrics() (*CoreMetrics, error) {
	meter := otel.Meter("gestalt/core")

	ticks, err := meter.Int64Counter(
		"gestalt.ticks.total",
		metric.WithDescription("Tick loop iterations"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter(
		"gestalt.transforms.dispatched",
		metric.WithDescription("Transform dispatches by id and outcome"),
	)
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter(
		"gestalt.skills.invoked",
		metric.WithDescription("Skill invocations by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"gestalt.experience.evicted",
		metric.WithDescription("Experience records evicted oldest-first"),
	)
	if err != nil {
		return nil, err
	}

	heals, err := meter.Int64Counter(
		"gestalt.heals.total",
		metric.WithDescription("Self-heal passes by trigger"),
	)
	if err != nil {
		return nil, err
	}

	evolutions, err := meter.Int64Counter(
		"gestalt.evolutions.total",
		metric.WithDescription("Evolution attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	heartbeatFailures, err := meter.Int64Counter(
		"gestalt.heartbeat.failures",
		metric.WithDescription("Failed outbound heartbeat deliveries"),
	)
	if err != nil {
		return nil, err
	}

	return &CoreMetrics{
		ticks:             ticks,
		dispatches:        dispatches,
		invocations:       invocations,
		evictions:         evictions,
		heals:             heals,
		evolutions:        evolutions,
		heartbeatFailures: heartbeatFailures,
	}, nil
}

// RecordTick increments the tick counter.
func (cm *CoreMetrics) RecordTick(ctx context.Context) {
	if cm == nil {
		return
	}
	cm.ticks.Add(ctx, 1)
}

// RecordDispatch records a transform dispatch outcome. A nil err means the
// transform produced its payload; err carries the classification otherwise.
func (cm *CoreMetrics) RecordDispatch(ctx context.Context, id string, err error) {
	if cm == nil {
		return
	}
	cm.dispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("transform.id", id),
			attribute.String("outcome", outcomeOf(err)),
		),
	)
}

// RecordInvocation records a skill invocation outcome.
func (cm *CoreMetrics) RecordInvocation(ctx context.Context, name string, err error) {
	if cm == nil {
		return
	}
	cm.invocations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("skill.name", name),
			attribute.String("outcome", outcomeOf(err)),
		),
	)
}

// RecordEvictions adds n evicted experience records.
func (cm *CoreMetrics) RecordEvictions(ctx context.Context, n int64) {
	if cm == nil || n == 0 {
		return
	}
	cm.evictions.Add(ctx, n)
}

// RecordHeal records a self-heal pass with its trigger
// (missing_certificate, fingerprint_mismatch, manual, periodic).
func (cm *CoreMetrics) RecordHeal(ctx context.Context, trigger string) {
	if cm == nil {
		return
	}
	cm.heals.Add(ctx, 1,
		metric.WithAttributes(attribute.String("trigger", trigger)),
	)
}

// RecordEvolution records an evolution attempt outcome.
func (cm *CoreMetrics) RecordEvolution(ctx context.Context, err error) {
	if cm == nil {
		return
	}
	cm.evolutions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcomeOf(err))),
	)
}

// RecordHeartbeatFailure increments the failed delivery counter.
func (cm *CoreMetrics) RecordHeartbeatFailure(ctx context.Context) {
	if cm == nil {
		return
	}
	cm.heartbeatFailures.Add(ctx, 1)
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errors.CodeOf(err))
}
