// Package device implements Device and the device registry (§3, §4.6).
package device

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/malivvan/uis/item"
	"github.com/malivvan/uis/kerneldev"
	"github.com/malivvan/uis/report"
	"github.com/malivvan/uis/strcache"
	"github.com/malivvan/uis/target"
	"github.com/malivvan/uis/wire"
)

// MaxDevices bounds the device_id ring (§3, §4.6).
const MaxDevices = 1 << 16

// Device owns three arrays of reports and the kernel file handle that
// backs them. Its fields are immutable after construction except id,
// which the owning Registry assigns on insert.
type Device struct {
	id uint32

	Path    string
	Usage   wire.Usage
	nameID  uint32
	strings *strcache.Cache

	Reports [wire.NumReportTypes][]*report.Report

	kernel kerneldev.Handle
	log    zerolog.Logger

	reg *Registry
}

// ID returns the device's registry-assigned identifier.
func (d *Device) ID() uint32 { return d.id }

// Name resolves and caches the device's name string (§4.2).
func (d *Device) Name() (string, error) {
	return d.strings.String(d.nameID)
}

// construct performs DEVICE_INFO/REPORT_INFO/ITEM_INFO against kernel, the
// already-open handle for path, and builds the report/item tree (§4.6
// "Construction"). Per-type construction
// failures stop that type's build but do not invalidate the device as long
// as input reports built successfully.
func construct(kernel kerneldev.Handle, path string, targets *target.Registry, reg *Registry, log zerolog.Logger) (*Device, error) {
	di, err := kernel.DeviceInfo()
	if err != nil {
		return nil, fmt.Errorf("device: %s: DEVICE_INFO: %w", path, err)
	}

	d := &Device{
		Path:    path,
		Usage:   di.Usage,
		nameID:  di.NameID,
		kernel:  kernel,
		log:     log.With().Str("path", path).Logger(),
		strings: strcache.New(kernel),
		reg:     reg,
	}

	for t := wire.ReportTypeInput; int(t) < wire.NumReportTypes; t++ {
		reports, err := buildReports(kernel, t, int(di.ReportCount[t]), targets, d, d.log)
		if err != nil {
			if t == wire.ReportTypeInput {
				return nil, fmt.Errorf("device: %s: building input reports: %w", path, err)
			}
			log.Warn().Err(err).Str("path", path).Str("type", t.String()).Msg("report construction failed; device still usable")
			continue
		}
		d.Reports[t] = reports
	}
	return d, nil
}

func buildReports(kernel kerneldev.Handle, t wire.ReportType, count int, targets *target.Registry, d *Device, log zerolog.Logger) ([]*report.Report, error) {
	reports := make([]*report.Report, 0, count)
	for i := 0; i < count; i++ {
		reply, err := kernel.ReportInfo(t, i)
		if err != nil {
			return reports, err
		}
		items := make([]*item.Item, 0, reply.ItemCount)
		for j := 0; j < int(reply.ItemCount); j++ {
			ii, err := kernel.ItemInfo(reply.Report, j)
			if err != nil {
				return reports, err
			}
			items = append(items, item.New(ii.Usage.Page, ii.Usage.ID, ii.IsRelative, targets))
		}
		r := report.New(kernel, reply, t, items, &deviceSink{dev: d}, log)
		reports = append(reports, r)
	}
	return reports, nil
}

// deviceSink adapts a Device to report.Sink; DeliverReport and NotifyGone
// are always invoked from a report's reader goroutine.
type deviceSink struct {
	dev *Device
}

func (s *deviceSink) DeliverReport(reportHandle uint64, items []wire.ItemDatum) {
	s.dev.reg.deliver(s.dev, reportHandle, items)
}

func (s *deviceSink) NotifyGone() {
	s.dev.reg.scheduleRemoval(s.dev)
}

// teardown stops every input report's reader goroutine and closes the
// kernel handle. Registry.Remove calls it after erasing the device and
// releasing RegistryLock; Add calls it with the lock held for a constructed
// device that it does not insert.
func (d *Device) teardown(ctx context.Context) {
	for _, reports := range d.Reports {
		for _, r := range reports {
			r.Stop(ctx)
		}
	}
	_ = d.kernel.Close()
}

// reportByHandle finds the report with the given opaque kernel handle.
func (d *Device) reportByHandle(handle uint64) *report.Report {
	for _, reports := range d.Reports {
		for _, r := range reports {
			if r.Handle == handle {
				return r
			}
		}
	}
	return nil
}

// ResolveReport implements §4.8's bitmask-to-index conversion: it
// linearizes the types selected by mask in input-then-output-then-feature
// order and returns the report at position linearIndex (§8 "Bitmask type
// selection"). dev.Reports is fixed at construction time, so this needs no
// lock of its own; callers that go on to read or mutate the resolved
// report's items must do so under Registry.WithLocked.
func ResolveReport(dev *Device, mask wire.TypeMask, linearIndex int) (*report.Report, wire.ReportType, error) {
	remaining := linearIndex
	for _, t := range mask.Types() {
		reports := dev.Reports[t]
		if remaining < len(reports) {
			return reports[remaining], t, nil
		}
		remaining -= len(reports)
	}
	return nil, 0, fmt.Errorf("device: report %d not in mask %d: %w", linearIndex, mask, wire.ErrBadValue)
}

// Registry is the ordered device_id -> *Device mapping (§4.6). Its mutex
// is the RegistryLock described in §5: it also guards every walk of
// device -> report -> item subscription lists.
type Registry struct {
	mu       sync.Mutex
	byID     map[uint32]*Device
	nextID   uint32
	targets  *target.Registry
	log      zerolog.Logger
	removals chan *Device
	stopLoop chan struct{}
}

// NewRegistry constructs an empty Registry sharing targets (the service's
// single target pool) across all devices.
func NewRegistry(targets *target.Registry, log zerolog.Logger) *Registry {
	r := &Registry{
		byID:     make(map[uint32]*Device),
		nextID:   1,
		targets:  targets,
		log:      log,
		removals: make(chan *Device, 16),
		stopLoop: make(chan struct{}),
	}
	go r.removalLoop()
	return r
}

// removalLoop processes self-removals off of the reporting reader
// goroutine that detected them (§5 "Reentrancy"; SPEC_FULL supplemented
// feature #2).
func (r *Registry) removalLoop() {
	for {
		select {
		case d := <-r.removals:
			r.Remove(d.id)
		case <-r.stopLoop:
			return
		}
	}
}

func (r *Registry) scheduleRemoval(d *Device) {
	select {
	case r.removals <- d:
	case <-r.stopLoop:
	}
}

func (r *Registry) deliver(d *Device, reportHandle uint64, items []wire.ItemDatum) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := d.reportByHandle(reportHandle)
	if rep == nil {
		return
	}
	for _, datum := range items {
		it, err := rep.Item(int(datum.Index))
		if err != nil {
			continue
		}
		it.SetValue(datum.Value)
	}
}

// Add constructs a Device at path and inserts it under the next free id
// (§4.7 "add(path)"). It is idempotent: if path is already present, it
// returns the existing device's id and added=false.
func (r *Registry) Add(kernel kerneldev.Handle, path string) (id uint32, added bool, err error) {
	r.mu.Lock()
	if existing := r.findByPathLocked(path); existing != nil {
		r.mu.Unlock()
		_ = kernel.Close()
		return existing.id, false, nil
	}
	r.mu.Unlock()

	d, err := construct(kernel, path, r.targets, r, r.log)
	if err != nil {
		return 0, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under lock: another goroutine may have raced us to Add.
	if existing := r.findByPathLocked(path); existing != nil {
		d.teardown(context.Background())
		return existing.id, false, nil
	}

	id, ok := r.allocateLocked()
	if !ok {
		d.teardown(context.Background())
		return 0, false, fmt.Errorf("device: registry full (%d devices): %w", MaxDevices, wire.ErrNoResource)
	}
	d.id = id
	r.byID[id] = d
	r.log.Debug().Uint32("device", id).Str("path", path).Msg("device added")
	return id, true, nil
}

// allocateLocked advances the rolling counter to the next free key,
// scanning at most once around the ring (§4.6).
func (r *Registry) allocateLocked() (uint32, bool) {
	start := r.nextID
	for {
		id := r.nextID
		r.nextID++
		if r.nextID > MaxDevices {
			r.nextID = 1
		}
		if _, taken := r.byID[id]; !taken {
			return id, true
		}
		if r.nextID == start {
			return 0, false
		}
	}
}

// Remove tears down and erases the device with the given id, if live.
func (r *Registry) Remove(id uint32) {
	r.mu.Lock()
	d, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	d.teardown(context.Background())
	r.log.Debug().Uint32("device", id).Str("path", d.Path).Msg("device removed")
}

// Get returns the device with the given id.
func (r *Registry) Get(id uint32) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("device: id %d: %w", id, wire.ErrBadValue)
	}
	return d, nil
}

// WithLocked resolves the device with id and invokes fn while holding
// RegistryLock — the same lock deliver (below) holds while calling
// Item.SetValue. Callers that read or mutate item state (poll a value,
// attach/release a subscription) must go through this rather than Get,
// so they serialize against report delivery instead of racing it (§5,
// and item.go's "caller already holds the device registry's lock"
// precondition).
func (r *Registry) WithLocked(id uint32, fn func(*Device) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("device: id %d: %w", id, wire.ErrBadValue)
	}
	return fn(d)
}

// NextAfter returns the least device_id strictly greater than id (§4.6,
// §8 "Ordered iteration"). id == 0 starts from the first device.
func (r *Registry) NextAfter(id uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.sortedIDsLocked()
	for _, candidate := range ids {
		if candidate > id {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("device: no more devices: %w", wire.ErrBadValue)
}

// FindByName returns the first device (in id order) whose resolved name
// equals s.
func (r *Registry) FindByName(s string) (*Device, error) {
	r.mu.Lock()
	ids := r.sortedIDsLocked()
	devices := make([]*Device, len(ids))
	for i, id := range ids {
		devices[i] = r.byID[id]
	}
	r.mu.Unlock()

	for _, d := range devices {
		name, err := d.Name()
		if err == nil && name == s {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device: name %q: %w", s, wire.ErrBadValue)
}

// FindByPath returns the first device (in id order) at path s.
func (r *Registry) FindByPath(s string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.findByPathLocked(s); d != nil {
		return d, nil
	}
	return nil, fmt.Errorf("device: path %q: %w", s, wire.ErrBadValue)
}

func (r *Registry) findByPathLocked(path string) *Device {
	for _, id := range r.sortedIDsLocked() {
		if d := r.byID[id]; d.Path == path {
			return d
		}
	}
	return nil
}

func (r *Registry) sortedIDsLocked() []uint32 {
	ids := make([]uint32, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of live devices (§8 "count-devices").
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Shutdown tears down every live device (§5 "~UISManager()").
func (r *Registry) Shutdown(ctx context.Context) {
	close(r.stopLoop)
	r.mu.Lock()
	ids := r.sortedIDsLocked()
	r.mu.Unlock()
	for _, id := range ids {
		r.Remove(id)
	}
}
