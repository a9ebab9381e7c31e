package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/sharesphere/spherecore"

type domainInstruments struct {
	operations    metric.Int64Counter
	conflicts     metric.Int64Counter
	votes         metric.Int64Counter
	notifications metric.Int64Counter
}

var (
	instrumentsOnce sync.Once
	instrumentsErr  error
	inst            domainInstruments
)

// initInstruments creates the domain counters on the global meter provider.
// The global provider delegates, so instruments created before Init still report once a provider is set.
func initInstruments() error {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(meterName)
		if inst.operations, instrumentsErr = meter.Int64Counter("spherecore_operations_total",
			metric.WithDescription("Engine operations by name and outcome")); instrumentsErr != nil {
			return
		}
		if inst.conflicts, instrumentsErr = meter.Int64Counter("spherecore_conflicts_total",
			metric.WithDescription("Writes rejected by a uniqueness invariant")); instrumentsErr != nil {
			return
		}
		if inst.votes, instrumentsErr = meter.Int64Counter("spherecore_votes_total",
			metric.WithDescription("Vote casts and retractions that changed an aggregate")); instrumentsErr != nil {
			return
		}
		inst.notifications, instrumentsErr = meter.Int64Counter("spherecore_notifications_total",
			metric.WithDescription("Notifications written by type"))
	})
	return instrumentsErr
}

func ready() bool {
	return initInstruments() == nil
}

// RecordOperation counts one engine operation with its outcome ("ok" or an error kind)
func RecordOperation(ctx context.Context, op, outcome string) {
	if !ready() {
		return
	}
	inst.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	if outcome == "conflict" {
		inst.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

// RecordVote counts a vote mutation ("cast", "change" or "retract")
func RecordVote(ctx context.Context, action string) {
	if !ready() {
		return
	}
	inst.votes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordNotification counts one notification row
func RecordNotification(ctx context.Context, notificationType string) {
	if !ready() {
		return
	}
	inst.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("type", notificationType)))
}
