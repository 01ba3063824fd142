package persist

import (
	"context"
	"time"

	"github.com/roach88/actsim/internal/sim"
)

// RemoteStateStore is the authoritative server-side tier.
type RemoteStateStore interface {
	// Fetch returns the stored snapshot for sessionID. A missing session
	// is reported as found=false with a nil error.
	Fetch(ctx context.Context, sessionID string) (sim.State, bool, error)

	// Push upserts the snapshot under its session id. Pushing the same
	// snapshot twice must be harmless.
	Push(ctx context.Context, state sim.State) error
}

// LocalStateCache is the client-side key-value tier. Values are JSON
// encoded snapshots.
type LocalStateCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
