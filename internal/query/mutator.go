package query

import (
	"context"

	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/booking-client/pkg/errors"
	"github.com/jwalitptl/booking-client/pkg/metrics"
	"github.com/jwalitptl/booking-client/pkg/notifier"
)

// Mutation describes one optimistic state change.
type Mutation struct {
	// Family is the key-family prefix to cancel before applying and to
	// invalidate afterwards, so every open view of the resource converges.
	Family string
	// Key is the exact page/filter scope the action was triggered from; it
	// is snapshotted and optimistically updated.
	Key Key
	// Apply is the optimistic transformation. It must return a new value,
	// preserving all other entities and their order.
	Apply func(interface{}) interface{}
	// Call dispatches the real request.
	Call func(ctx context.Context) error
	// SuccessMessage, when set, is pushed to the notification sink on
	// success.
	SuccessMessage string
}

// Mutator executes state-changing calls through the optimistic-update
// protocol. It is the only component allowed to perform optimistic writes.
type Mutator struct {
	cache    *Cache
	notifier notifier.Notifier
	metrics  *metrics.Metrics
	logger   *zerolog.Logger
}

func NewMutator(cache *Cache, n notifier.Notifier, m *metrics.Metrics, logger *zerolog.Logger) *Mutator {
	return &Mutator{cache: cache, notifier: n, metrics: m, logger: logger}
}

// Run executes the mutation steps strictly in order: cancel in-flight
// queries for the family, snapshot the scoped entry, apply the optimistic
// value, dispatch, then reconcile — discard the snapshot and refetch on
// success, restore it exactly on failure — and always invalidate the family.
func (m *Mutator) Run(ctx context.Context, mut Mutation) error {
	m.cache.CancelPrefix(mut.Family)

	snapshot, snapshotted := m.cache.Snapshot(mut.Key)
	if snapshotted && mut.Apply != nil {
		m.cache.SetValue(mut.Key, mut.Apply)
	}

	err := mut.Call(ctx)
	if err != nil {
		if snapshotted {
			if !m.cache.Restore(mut.Key, snapshot) {
				// Entry evicted between snapshot and rollback: report the
				// failure without a visual rollback.
				m.logger.Warn().Str("key", mut.Key.String()).Msg("snapshot gone, skipping rollback")
			}
		}
		m.notifier.Notify(notifier.Error(apperrors.Message(err)))
		m.metrics.Mutations.WithLabelValues("rollback").Inc()
	} else {
		if mut.SuccessMessage != "" {
			m.notifier.Notify(notifier.Success(mut.SuccessMessage))
		}
		m.metrics.Mutations.WithLabelValues("success").Inc()
	}

	m.cache.Invalidate(mut.Family)
	return err
}
