// Package report implements a Report: an ordered array of items, with a
// dedicated reader goroutine for input reports (§3, §4.3).
package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/malivvan/uis/item"
	"github.com/malivvan/uis/kerneldev"
	"github.com/malivvan/uis/wire"
)

// Sink receives parsed (index, value) deltas for one report; the device
// package's per-device sink implements it and applies the deltas under the
// device registry's lock.
type Sink interface {
	DeliverReport(reportHandle uint64, items []wire.ItemDatum)
	// NotifyGone is invoked exactly once if the reader thread observes
	// "device not ready"; it must not block and must not itself join the
	// reader thread (§5 "Reentrancy").
	NotifyGone()
}

// Report owns an array of Items, addressed by position, and, for input
// reports, a reader goroutine. Items keep the order they are passed to New
// (the device package builds them by ascending ITEM_INFO index); New itself
// does not check order or duplicates.
type Report struct {
	Type   wire.ReportType
	ID     uint8
	Handle uint64 // opaque kernel report handle

	Items []*item.Item

	kernel kerneldev.Handle
	sink   Sink
	log    zerolog.Logger

	active  atomic.Bool
	done    chan struct{}
	started sync.Once
}

// New constructs a Report and, if typ is input, spawns its reader
// goroutine (§4.3). sink receives delivered deltas and the terminal
// "device gone" notification.
func New(kernel kerneldev.Handle, reply wire.ReportInfoReply, typ wire.ReportType, items []*item.Item, sink Sink, log zerolog.Logger) *Report {
	r := &Report{
		Type:   typ,
		ID:     reply.ID,
		Handle: reply.Report,
		Items:  items,
		kernel: kernel,
		sink:   sink,
		log:    log.With().Uint64("report", reply.Report).Str("type", typ.String()).Logger(),
		done:   make(chan struct{}),
	}
	if typ == wire.ReportTypeInput {
		r.active.Store(true)
		go r.readLoop()
	}
	return r
}

// readLoop is the per-report reader thread (§4.3). It blocks in the
// kernel READ ioctl, dispatches each delta under the sink's lock
// discipline, and exits on any terminal condition.
func (r *Report) readLoop() {
	defer close(r.done)
	for r.active.Load() {
		data, err := r.kernel.Read(r.Handle)
		if err != nil {
			if errors.Is(err, wire.ErrReportStopped) {
				// A requested STOP, not device loss: Stop() is already
				// waiting on r.done, nothing else to report.
				r.active.Store(false)
				return
			}
			if errors.Is(err, wire.ErrDeviceGone) {
				r.active.Store(false)
				r.log.Warn().Err(err).Msg("device not ready; self-removing")
				r.sink.NotifyGone()
				return
			}
			r.active.Store(false)
			r.log.Warn().Err(err).Msg("report reader terminated")
			return
		}
		r.sink.DeliverReport(data.Report, data.Items)
	}
}

// Stop implements the destruction protocol of §4.3: flip active false,
// issue STOP, and join the reader goroutine if STOP succeeded. If STOP
// fails the goroutine is abandoned (it will die with the device fd).
func (r *Report) Stop(ctx context.Context) {
	if r.Type != wire.ReportTypeInput {
		return
	}
	r.active.Store(false)
	if err := r.kernel.Stop(r.Handle); err != nil {
		r.log.Warn().Err(err).Msg("STOP failed; abandoning reader goroutine")
		return
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		r.log.Warn().Msg("timed out joining reader goroutine")
	}
}

// Send implements the output/feature send path (§4.1 "SEND").
func (r *Report) Send(items []wire.ItemDatum) error {
	if r.Type == wire.ReportTypeInput {
		return fmt.Errorf("report: cannot send to an input report: %w", wire.ErrBadValue)
	}
	return r.kernel.Send(wire.ReportData{Report: r.Handle, Items: items})
}

// Item returns the index'th item, or an error if out of range.
func (r *Report) Item(index int) (*item.Item, error) {
	if index < 0 || index >= len(r.Items) {
		return nil, fmt.Errorf("report: item index %d: %w", index, wire.ErrBadValue)
	}
	return r.Items[index], nil
}
