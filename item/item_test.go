package item_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/item"
	"github.com/malivvan/uis/target"
)

func newTarget(t *testing.T, r *target.Registry, token int64) (*target.Target, *endpoint.Chan) {
	t.Helper()
	var ch *endpoint.Chan
	tg, err := r.FindOrAdd(1, 1, token, func() (endpoint.Endpoint, error) {
		ch = endpoint.NewChan(4)
		return ch, nil
	})
	require.NoError(t, err)
	return tg, ch
}

func TestValueRoundTrip(t *testing.T) {
	it := item.New(1, 0x30, false, target.NewRegistry())
	require.Equal(t, float32(0), it.Value())
	it.SetValue(0.75)
	require.Equal(t, float32(0.75), it.Value())
}

func TestSetTargetAttachAndFanOut(t *testing.T) {
	reg := target.NewRegistry()
	it := item.New(1, 0x30, false, reg)
	tg, ch := newTarget(t, reg, 9)

	sub := it.SetTarget(nil, tg, 42)
	require.NotNil(t, sub)
	require.Equal(t, 1, it.SubscriptionCount())

	it.SetValue(1.25)
	select {
	case ev := <-ch.C:
		require.Equal(t, int64(42), ev.Cookie)
		require.Equal(t, float32(1.25), ev.Value)
	default:
		t.Fatal("expected a delivered event")
	}
}

func TestSetTargetReleaseRemovesSubscription(t *testing.T) {
	reg := target.NewRegistry()
	it := item.New(1, 0x30, false, reg)
	tg, _ := newTarget(t, reg, 9)

	it.SetTarget(nil, tg, 42)
	require.Equal(t, 1, it.SubscriptionCount())

	sub := it.SetTarget(tg, nil, 42)
	require.Nil(t, sub)
	require.Equal(t, 0, it.SubscriptionCount())
	require.Equal(t, 0, reg.Count(), "releasing the only subscription should evict the target")
}

func TestSetTargetRetargetReplacesPrior(t *testing.T) {
	reg := target.NewRegistry()
	it := item.New(1, 0x30, false, reg)
	a, _ := newTarget(t, reg, 1)
	b, _ := newTarget(t, reg, 2)

	it.SetTarget(nil, a, 1)
	require.Equal(t, 1, it.SubscriptionCount())

	it.SetTarget(a, b, 2)
	require.Equal(t, 1, it.SubscriptionCount())
	require.Equal(t, 0, a.RefCount())
}

// deadEndpoint always fails, simulating an endpoint that has gone away.
type deadEndpoint struct{}

func (deadEndpoint) Send(endpoint.Event) error { return endpoint.ErrWouldBlock }
func (deadEndpoint) Close() error              { return nil }

func TestSetValueEvictsDeadSubscriberWithoutAbortingOthers(t *testing.T) {
	reg := target.NewRegistry()
	it := item.New(1, 0x30, false, reg)

	dead, err := reg.FindOrAdd(1, 1, 1, func() (endpoint.Endpoint, error) { return deadEndpoint{}, nil })
	require.NoError(t, err)
	alive, aliveCh := newTarget(t, reg, 2)

	it.SetTarget(nil, dead, 1)
	it.SetTarget(nil, alive, 2)
	require.Equal(t, 2, it.SubscriptionCount())

	it.SetValue(3.0)

	require.Equal(t, 1, it.SubscriptionCount(), "dead subscriber should be dropped")
	select {
	case ev := <-aliveCh.C:
		require.Equal(t, int64(2), ev.Cookie)
	default:
		t.Fatal("live subscriber should still have received the event")
	}
}
