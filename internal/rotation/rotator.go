package rotation

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/internal/metrics"
	"github.com/chainpulse/wallet-tracker/internal/provider"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// ErrNoCredential is returned when the credential pool is empty
var ErrNoCredential = errors.New("credential pool is empty")

// ErrPoolExhausted is returned by WithCredential when every credential in the
// pool failed with a quota-exhaustion error.
var ErrPoolExhausted = errors.New("all credentials in pool are exhausted")

// CursorStore persists the pool position so the rotation survives restarts
type CursorStore interface {
	GetCredentialCursor(ctx context.Context) (index int, found bool, err error)
	SetCredentialCursor(ctx context.Context, index int) error
}

// Alerter notifies the operator about pool-level events
type Alerter interface {
	AlertOperator(ctx context.Context, message string)
}

// Rotator serves API keys from a fixed pool, one at a time, and advances the
// shared cursor when a key is reported spent. The mutex is held across the
// whole read-check-write so concurrent reporters of the same spent key move
// the cursor exactly one step.
type Rotator struct {
	mu      sync.Mutex
	keys    []string
	store   CursorStore
	alerter Alerter
	logger  *logrus.Logger
	metrics *metrics.Metrics

	// cached cursor, loaded lazily from the store on first use
	cursor int
	loaded bool
}

// NewRotator creates a rotator over the configured key pool
func NewRotator(keys []string, store CursorStore, alerter Alerter) *Rotator {
	return &Rotator{
		keys:    keys,
		store:   store,
		alerter: alerter,
		logger:  utils.GetLogger(),
	}
}

// SetMetrics attaches rotation metrics
func (r *Rotator) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// PoolSize returns the number of keys in the pool
func (r *Rotator) PoolSize() int {
	return len(r.keys)
}

// Current returns the key the cursor points at and its index
func (r *Rotator) Current(ctx context.Context) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return "", 0, err
	}

	key, err := r.keyAtLocked(r.cursor)
	if err != nil {
		return "", 0, err
	}
	return key, r.cursor, nil
}

// AdvanceIfStillAt moves the cursor one step forward, but only if it still
// sits at the index the caller observed. A stale index means another caller
// already rotated and the current position is returned unchanged.
func (r *Rotator) AdvanceIfStillAt(ctx context.Context, observed int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return 0, err
	}
	if len(r.keys) == 0 {
		return 0, ErrNoCredential
	}

	if r.cursor != observed {
		return r.cursor, nil
	}

	next := (r.cursor + 1) % len(r.keys)
	if err := r.store.SetCredentialCursor(ctx, next); err != nil {
		return r.cursor, err
	}

	wrapped := next == 0 && observed == len(r.keys)-1
	if wrapped {
		r.logger.Warn("Credential pool wrapped around to the first key")
		if r.alerter != nil {
			r.alerter.AlertOperator(ctx, "Credential pool wrapped: every API key has been rotated through, quota may be exhausted across the pool")
		}
	}
	if r.metrics != nil {
		r.metrics.ObserveRotation(next, wrapped)
	}

	r.cursor = next
	r.logger.WithFields(logrus.Fields{
		"from": observed,
		"to":   next,
	}).Info("Credential cursor advanced")

	return next, nil
}

// ResetToZero moves the cursor back to the first key
func (r *Rotator) ResetToZero(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SetCredentialCursor(ctx, 0); err != nil {
		return err
	}
	r.cursor = 0
	r.loaded = true
	r.logger.Info("Credential cursor reset to zero")
	return nil
}

// WithCredential runs fn with the current key and walks the whole pool on
// quota exhaustion, advancing the cursor as it goes. Any error other than a
// spent credential stops the walk. Used by on-demand lookups that must answer
// now rather than wait for the next sweep.
func (r *Rotator) WithCredential(ctx context.Context, fn func(apiKey string) error) error {
	if len(r.keys) == 0 {
		return ErrNoCredential
	}

	for attempt := 0; attempt < len(r.keys); attempt++ {
		key, index, err := r.Current(ctx)
		if err != nil {
			return err
		}

		err = fn(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, provider.ErrCredentialExhausted) {
			return err
		}

		if _, err := r.AdvanceIfStillAt(ctx, index); err != nil {
			return err
		}
	}

	return ErrPoolExhausted
}

// loadLocked restores the cursor from the store on first use. Callers hold mu.
func (r *Rotator) loadLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	index, found, err := r.store.GetCredentialCursor(ctx)
	if err != nil {
		return err
	}
	if found && len(r.keys) > 0 && index < len(r.keys) {
		r.cursor = index
	} else {
		r.cursor = 0
	}
	r.loaded = true
	return nil
}

// keyAtLocked returns the key at index, rejecting empty pools and blank slots
func (r *Rotator) keyAtLocked(index int) (string, error) {
	if len(r.keys) == 0 {
		return "", ErrNoCredential
	}
	key := r.keys[index%len(r.keys)]
	if key == "" {
		return "", ErrNoCredential
	}
	return key, nil
}
