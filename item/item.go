// Package item implements a single report field (§3 "ReportItem", §4.4).
//
// Every exported method on Item assumes the caller already holds the
// device registry's lock (RegistryLock, §5) — Item has no internal
// locking of its own, matching the spec's invariant that "subscription
// list mutated only under the device-registry lock".
package item

import (
	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/target"
	"github.com/malivvan/uis/wire"
)

// Subscription binds one (item, target, cookie) event-delivery request.
type Subscription struct {
	Target *target.Target
	Cookie int64
}

// Item is a single numeric field within a Report.
type Item struct {
	UsagePage  uint16
	UsageID    uint16
	IsRelative bool

	last float32
	subs []Subscription

	targets *target.Registry
}

// New constructs an Item. targets is the owning device registry's target
// pool, used to evict a target whose send reports endpoint-gone.
func New(usagePage, usageID uint16, isRelative bool, targets *target.Registry) *Item {
	return &Item{UsagePage: usagePage, UsageID: usageID, IsRelative: isRelative, targets: targets}
}

// Value returns the last value reported for this item (poll-item-value).
func (it *Item) Value() float32 { return it.last }

// SetValue stores v and fans it out to every subscriber in order. A
// subscriber whose send reports endpoint-gone has its target evicted from
// the registry and its subscription dropped; this never aborts delivery
// to the remaining subscribers (§4.4).
func (it *Item) SetValue(v float32) {
	it.last = v
	if len(it.subs) == 0 {
		return
	}
	live := it.subs[:0]
	for _, sub := range it.subs {
		err := sub.Target.Send(endpoint.Event{Cookie: sub.Cookie, Value: v})
		if err != nil {
			it.targets.Remove(sub.Target)
			continue
		}
		live = append(live, sub)
	}
	it.subs = live
}

// SetTarget implements §4.4's set_target: it releases prior (by pointer
// identity) before attaching a new one, or simply releases when t is nil.
// It returns the new subscription (nil if t is nil).
func (it *Item) SetTarget(prior *target.Target, t *target.Target, cookie int64) *Subscription {
	if prior != nil {
		it.unsubscribe(prior)
		it.targets.Remove(prior)
	}
	if t == nil {
		return nil
	}
	sub := Subscription{Target: t, Cookie: cookie}
	it.subs = append(it.subs, sub)
	return &sub
}

func (it *Item) unsubscribe(t *target.Target) {
	for i, s := range it.subs {
		if s.Target == t {
			it.subs = append(it.subs[:i], it.subs[i+1:]...)
			return
		}
	}
}

// SubscriptionCount returns the number of live subscriptions, for tests.
func (it *Item) SubscriptionCount() int { return len(it.subs) }

// ErrNoSuchItem is returned by lookups that resolve an out-of-range index.
var ErrNoSuchItem = wire.ErrBadValue
