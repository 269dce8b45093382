// Package endpoint models the remote-port send primitive the Input
// Service treats as an external collaborator (§1, §9 "Remote endpoints"):
// an opaque handle with a Send that can fail with "endpoint gone". This
// package never couples to a specific message-framework type; transports
// (in-process channel, network socket) implement the Endpoint interface.
package endpoint

import (
	"context"
	"errors"
	"time"

	"github.com/malivvan/uis/wire"
)

// Event is the payload delivered for a single item-value change
// (§6 "Event message").
type Event struct {
	Cookie int64
	Value  float32
}

// Endpoint is a non-owning reference to a remote message sink.
type Endpoint interface {
	// Send delivers ev. A permanent failure must be wrapped in
	// wire.ErrEndpointGone so callers can evict the owning Target.
	Send(ev Event) error
	Close() error
}

// ErrWouldBlock is a transient send failure: the sink's queue is full but
// the sink itself is still alive.
var ErrWouldBlock = errors.New("endpoint: would block")

// SendWithRetry mirrors the original UISTarget::SendMsg behavior
// (SPEC_FULL "Supplemented features" #1): a transient would-block is
// retried once after a short delay before being treated as permanent;
// any other failure is wrapped as endpoint-gone immediately.
func SendWithRetry(ctx context.Context, ep Endpoint, ev Event) error {
	err := ep.Send(ev)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrWouldBlock) {
		return errors.Join(err, wire.ErrEndpointGone)
	}

	select {
	case <-time.After(5 * time.Millisecond):
	case <-ctx.Done():
		return errors.Join(ctx.Err(), wire.ErrEndpointGone)
	}

	if err := ep.Send(ev); err != nil {
		return errors.Join(err, wire.ErrEndpointGone)
	}
	return nil
}

// Chan is an in-process Endpoint backed by a buffered channel, used by
// same-process clients (the demo CLI's endpoint dialer, the example
// programs) and by tests.
type Chan struct {
	C      chan Event
	closed chan struct{}
}

// NewChan constructs a channel-backed endpoint with the given queue depth.
func NewChan(depth int) *Chan {
	return &Chan{C: make(chan Event, depth), closed: make(chan struct{})}
}

func (c *Chan) Send(ev Event) error {
	select {
	case <-c.closed:
		return errors.New("endpoint: closed")
	default:
	}
	select {
	case c.C <- ev:
		return nil
	default:
		return ErrWouldBlock
	}
}

func (c *Chan) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}
	return nil
}
