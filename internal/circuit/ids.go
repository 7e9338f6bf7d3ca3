package circuit

import (
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces circuit ids.
// Implemented by UUIDv7Generator; tests use testutil.SequentialIDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 circuit ids.
//
// Circuit ids double as the request id the browser echoes back, so they must
// be unguessable enough not to collide across restarts. UUIDv7 also sorts by
// creation time, which keeps journal listings readable.
type UUIDv7Generator struct{}

// Generate panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock reports the current time. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
