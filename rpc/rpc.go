// Package rpc implements the single-threaded request/reply dispatcher
// (§4.8) mediating every client control operation. Requests and replies
// are tagged messages with stable string field names (§6); how those
// messages cross a process boundary (framing, encoding) is an external
// collaborator (§1 "(b) a reliable byte-transport for command/reply
// control messages") this package does not own — Dispatch is the seam a
// transport adapter decodes a request into and encodes a reply out of.
package rpc

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/malivvan/uis/device"
	"github.com/malivvan/uis/endpoint"
	"github.com/malivvan/uis/item"
	"github.com/malivvan/uis/target"
	"github.com/malivvan/uis/wire"
)

// Op is one of the ten client-visible RPC opcodes (§4.8, §6).
type Op string

const (
	OpNextDevice    Op = "next-device"
	OpFindDevice    Op = "find-device"
	OpGetDevice     Op = "get-device"
	OpGetReport     Op = "get-report"
	OpSendReport    Op = "send-report"
	OpGetItem       Op = "get-item"
	OpFindItem      Op = "find-item"
	OpPollItemValue Op = "poll-item-value"
	OpSetItemTarget Op = "set-item-target"
	OpCountDevices  Op = "count-devices"
)

// Message is a tagged request or reply, keyed by the stable field names
// from §6 (e.g. "device", "report", "type", "target", "cookie").
type Message map[string]any

// EndpointOpener opens a transport-level Endpoint for a (team, port,
// token) subscription target, e.g. dialing the client's message port.
type EndpointOpener func(team, port, token int64) (endpoint.Endpoint, error)

// Dispatcher is the single-threaded RPC handler (§4.8, §5 "Single
// dispatcher"). All registry mutations from client RPCs serialize through
// Dispatch; it must only be called from one goroutine at a time (the
// service's message loop).
type Dispatcher struct {
	Devices      *device.Registry
	Targets      *target.Registry
	OpenEndpoint EndpointOpener
	Log          zerolog.Logger
}

// New constructs a Dispatcher.
func New(devices *device.Registry, targets *target.Registry, openEndpoint EndpointOpener, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{Devices: devices, Targets: targets, OpenEndpoint: openEndpoint, Log: log.With().Str("component", "rpc").Logger()}
}

// Dispatch resolves one request to a reply. It never partially mutates
// state on error (§7 "Policy"): each opcode either completes and replies
// OK, or returns an error before any mutation is visible.
func (d *Dispatcher) Dispatch(op Op, req Message) (Message, error) {
	d.Log.Debug().Str("op", string(op)).Msg("dispatch")
	switch op {
	case OpNextDevice:
		return d.nextDevice(req)
	case OpFindDevice:
		return d.findDevice(req)
	case OpCountDevices:
		return d.countDevices(req)
	case OpGetDevice:
		return d.getDevice(req)
	case OpGetReport:
		return d.getReport(req)
	case OpSendReport:
		return d.sendReport(req)
	case OpGetItem:
		return d.getItem(req)
	case OpFindItem:
		return d.findItem(req)
	case OpPollItemValue:
		return d.pollItemValue(req)
	case OpSetItemTarget:
		return d.setItemTarget(req)
	default:
		return nil, fmt.Errorf("rpc: unknown opcode %q: %w", op, wire.ErrInvalidOp)
	}
}

func u32(m Message, key string) uint32 {
	switch v := m[key].(type) {
	case uint32:
		return v
	case uint16:
		return uint32(v)
	case int:
		return uint32(v)
	case int64:
		return uint32(v)
	case float64:
		return uint32(v)
	default:
		return 0
	}
}

func i64(m Message, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case uint32:
		return int64(v)
	default:
		return 0
	}
}

func str(m Message, key string) string {
	s, _ := m[key].(string)
	return s
}

func (d *Dispatcher) nextDevice(req Message) (Message, error) {
	id, err := d.Devices.NextAfter(u32(req, "device"))
	if err != nil {
		return nil, err
	}
	return Message{"next": id}, nil
}

func (d *Dispatcher) findDevice(req Message) (Message, error) {
	dev, err := d.Devices.FindByName(str(req, "name"))
	if err != nil {
		return nil, err
	}
	return Message{"device": dev.ID()}, nil
}

func (d *Dispatcher) countDevices(Message) (Message, error) {
	return Message{"devices": d.Devices.Count()}, nil
}

func (d *Dispatcher) getDevice(req Message) (Message, error) {
	dev, err := d.Devices.Get(u32(req, "device"))
	if err != nil {
		return nil, err
	}
	name, err := dev.Name()
	if err != nil {
		name = ""
	}
	return Message{
		"name":            name,
		"path":            dev.Path,
		"page":            dev.Usage.Page,
		"id":              dev.Usage.ID,
		"input reports":   len(dev.Reports[wire.ReportTypeInput]),
		"output reports":  len(dev.Reports[wire.ReportTypeOutput]),
		"feature reports": len(dev.Reports[wire.ReportTypeFeature]),
	}, nil
}

func (d *Dispatcher) getReport(req Message) (Message, error) {
	dev, err := d.Devices.Get(u32(req, "device"))
	if err != nil {
		return nil, err
	}
	mask := wire.TypeMask(u32(req, "type"))
	rep, typ, err := device.ResolveReport(dev, mask, int(u32(req, "report")))
	if err != nil {
		return nil, err
	}
	return Message{"items": len(rep.Items), "type": wire.FromReportType(typ)}, nil
}

func (d *Dispatcher) sendReport(req Message) (Message, error) {
	dev, err := d.Devices.Get(u32(req, "device"))
	if err != nil {
		return nil, err
	}
	mask := wire.TypeMask(u32(req, "type"))
	rep, _, err := device.ResolveReport(dev, mask, int(u32(req, "report")))
	if err != nil {
		return nil, err
	}
	raw, _ := req["data"].([]wire.ItemDatum)
	if err := rep.Send(raw); err != nil {
		return nil, err
	}
	return Message{}, nil
}

// getItem resolves and reads an item's cached attributes under
// RegistryLock (§5): it must serialize against Registry.deliver's
// concurrent Item.SetValue calls from the report reader goroutines.
func (d *Dispatcher) getItem(req Message) (Message, error) {
	mask := wire.TypeMask(u32(req, "type"))
	reportIdx := int(u32(req, "report"))
	itemIdx := int(u32(req, "item"))

	var msg Message
	err := d.Devices.WithLocked(u32(req, "device"), func(dev *device.Device) error {
		rep, _, err := device.ResolveReport(dev, mask, reportIdx)
		if err != nil {
			return err
		}
		it, err := rep.Item(itemIdx)
		if err != nil {
			return err
		}
		msg = itemMessage(it)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// findItem resolves an item by usage under RegistryLock, for the same
// reason getItem does. The returned "report" index is linearized across
// mask's selected types (input-then-output-then-feature), matching how
// get-report/device.ResolveReport address a report — not the per-type index.
func (d *Dispatcher) findItem(req Message) (Message, error) {
	mask := wire.TypeMask(u32(req, "type"))
	page, usageID := uint16(u32(req, "page")), uint16(u32(req, "id"))

	var msg Message
	err := d.Devices.WithLocked(u32(req, "device"), func(dev *device.Device) error {
		base := 0
		for _, t := range mask.Types() {
			for ri, rep := range dev.Reports[t] {
				for ii, it := range rep.Items {
					if it.UsagePage == page && it.UsageID == usageID {
						msg = itemMessage(it)
						msg["report"] = base + ri
						msg["item"] = ii
						return nil
					}
				}
			}
			base += len(dev.Reports[t])
		}
		return fmt.Errorf("rpc: no item with usage %d/%d: %w", page, usageID, wire.ErrBadValue)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func itemMessage(it *item.Item) Message {
	return Message{
		"page":     it.UsagePage,
		"id":       it.UsageID,
		"relative": it.IsRelative,
		"value":    it.Value(),
	}
}

// pollItemValue reads an item's last value under RegistryLock, for the
// same reason getItem does.
func (d *Dispatcher) pollItemValue(req Message) (Message, error) {
	mask := wire.TypeMask(u32(req, "type"))
	reportIdx := int(u32(req, "report"))
	itemIdx := int(u32(req, "item"))

	var value float32
	err := d.Devices.WithLocked(u32(req, "device"), func(dev *device.Device) error {
		rep, _, err := device.ResolveReport(dev, mask, reportIdx)
		if err != nil {
			return err
		}
		it, err := rep.Item(itemIdx)
		if err != nil {
			return err
		}
		value = it.Value()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Message{"value": value}, nil
}

// setItemTarget attaches or releases a subscription under RegistryLock:
// Item.SetTarget mutates the same subs slice Registry.deliver walks and
// appends to from a report reader goroutine (§5), and target.Registry's
// own lock is documented as acquired only while the caller already holds
// RegistryLock (see target.go), so FindOrAdd/Remove below happen inside
// this closure too.
//
// prior is taken as the opaque "target" handle from the client's
// previous set-item-target reply; see client.Item for how it is tracked.
func (d *Dispatcher) setItemTarget(req Message) (Message, error) {
	mask := wire.TypeMask(u32(req, "type"))
	reportIdx := int(u32(req, "report"))
	itemIdx := int(u32(req, "item"))
	prior, _ := req["target"].(*target.Target)
	team, port, token := i64(req, "team"), i64(req, "port"), i64(req, "token")
	cookie := i64(req, "cookie")

	var reply Message
	err := d.Devices.WithLocked(u32(req, "device"), func(dev *device.Device) error {
		rep, _, err := device.ResolveReport(dev, mask, reportIdx)
		if err != nil {
			return err
		}
		it, err := rep.Item(itemIdx)
		if err != nil {
			return err
		}

		if (team == -1 && port == -1) || token == 0 {
			it.SetTarget(prior, nil, cookie)
			reply = Message{"target": (*target.Target)(nil)}
			return nil
		}

		t, err := d.Targets.FindOrAdd(team, port, token, func() (endpoint.Endpoint, error) {
			return d.OpenEndpoint(team, port, token)
		})
		if err != nil {
			return fmt.Errorf("rpc: set-item-target: %w", err)
		}
		it.SetTarget(prior, t, cookie)
		reply = Message{"target": t}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}
