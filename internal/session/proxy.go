package session

import (
	"context"
	"time"

	"github.com/alfredjeanlab/nego/internal/model"
)

// Proxy represents one remote participant. Implementations must be safe to
// Release concurrently with the other participant's proxy.
type Proxy interface {
	ID() string

	// Observe delivers a message. It never blocks on the remote side.
	Observe(msg model.Message)

	// Act waits up to timeout for the participant's next action. It returns
	// model.ErrDeparted when the participant disconnected, abandoned, expired,
	// returned the task or did not act in time.
	Act(ctx context.Context, timeout time.Duration) (*model.Action, error)

	Flags() model.ConnFlags

	// Release closes the participant's connection, waiting up to timeout for
	// the client to acknowledge.
	Release(ctx context.Context, timeout time.Duration) error
}
