package endpoint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/wire"
)

func TestChanSendReceive(t *testing.T) {
	c := endpoint.NewChan(2)
	require.NoError(t, c.Send(endpoint.Event{Cookie: 1, Value: 0.5}))

	select {
	case ev := <-c.C:
		require.Equal(t, int64(1), ev.Cookie)
		require.InDelta(t, 0.5, ev.Value, 1e-6)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestChanSendWouldBlockWhenFull(t *testing.T) {
	c := endpoint.NewChan(1)
	require.NoError(t, c.Send(endpoint.Event{Cookie: 1}))
	err := c.Send(endpoint.Event{Cookie: 2})
	require.ErrorIs(t, err, endpoint.ErrWouldBlock)
}

func TestChanSendAfterCloseFails(t *testing.T) {
	c := endpoint.NewChan(1)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close()) // idempotent
	err := c.Send(endpoint.Event{Cookie: 1})
	require.Error(t, err)
}

// blockingThenOK fails with ErrWouldBlock exactly once, then succeeds.
type blockingThenOK struct {
	fails int
	sent  []endpoint.Event
}

func (b *blockingThenOK) Send(ev endpoint.Event) error {
	if b.fails > 0 {
		b.fails--
		return endpoint.ErrWouldBlock
	}
	b.sent = append(b.sent, ev)
	return nil
}
func (b *blockingThenOK) Close() error { return nil }

func TestSendWithRetryRecoversFromTransientBlock(t *testing.T) {
	ep := &blockingThenOK{fails: 1}
	err := endpoint.SendWithRetry(context.Background(), ep, endpoint.Event{Cookie: 7})
	require.NoError(t, err)
	require.Len(t, ep.sent, 1)
}

type alwaysGone struct{}

func (alwaysGone) Send(endpoint.Event) error { return errors.New("boom") }
func (alwaysGone) Close() error              { return nil }

func TestSendWithRetryPermanentFailureWrapsEndpointGone(t *testing.T) {
	err := endpoint.SendWithRetry(context.Background(), alwaysGone{}, endpoint.Event{})
	require.ErrorIs(t, err, wire.ErrEndpointGone)
}

type alwaysBlocking struct{}

func (alwaysBlocking) Send(endpoint.Event) error { return endpoint.ErrWouldBlock }
func (alwaysBlocking) Close() error              { return nil }

func TestSendWithRetryGivesUpAfterOneRetry(t *testing.T) {
	err := endpoint.SendWithRetry(context.Background(), alwaysBlocking{}, endpoint.Event{})
	require.ErrorIs(t, err, wire.ErrEndpointGone)
}

func TestSendWithRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := endpoint.SendWithRetry(ctx, alwaysBlocking{}, endpoint.Event{})
	require.ErrorIs(t, err, wire.ErrEndpointGone)
}
