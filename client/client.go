// Package client implements the thin, transport-only façade of §4.9: every
// client-visible operation is exactly one synchronous control RPC plus
// local object construction. Handles cache immutable attributes (usage,
// id, relative flag) from the RPC reply and address server-side state by
// (device_id, report index, item index) rather than by service pointer,
// so they remain meaningful addresses across a service restart in
// principle (§4.9).
package client

import (
	"github.com/malivvan/uis/rpc"
	"github.com/malivvan/uis/wire"
)

// Transport issues one control RPC and blocks for its reply (§4.9
// "Suspension points": client control calls block until the dispatcher
// replies). In-process callers pass *rpc.Dispatcher directly, which
// satisfies this interface; a networked client instead wraps a framed
// byte-transport (external collaborator (b), §1) that encodes/decodes
// rpc.Message.
type Transport interface {
	Dispatch(op rpc.Op, req rpc.Message) (rpc.Message, error)
}

// Client is the application-facing entry point: construct one per
// connection to the Input Service.
type Client struct {
	t Transport
}

// New wraps a Transport (typically a *rpc.Dispatcher, or a stub that
// marshals requests over a control-channel byte transport).
func New(t Transport) *Client {
	return &Client{t: t}
}

// CountDevices returns the number of live devices known to the service.
func (c *Client) CountDevices() (int, error) {
	reply, err := c.t.Dispatch(rpc.OpCountDevices, rpc.Message{})
	if err != nil {
		return 0, err
	}
	n, _ := reply["devices"].(int)
	return n, nil
}

// NextDevice returns the handle of the least device_id strictly greater
// than after (0 to start the roster from the beginning), implementing the
// Roster iteration pattern of §4.9.
func (c *Client) NextDevice(after uint32) (*Device, error) {
	reply, err := c.t.Dispatch(rpc.OpNextDevice, rpc.Message{"device": after})
	if err != nil {
		return nil, err
	}
	id, _ := reply["next"].(uint32)
	return c.GetDevice(id)
}

// FindDevice resolves a device by its cached name string.
func (c *Client) FindDevice(name string) (*Device, error) {
	reply, err := c.t.Dispatch(rpc.OpFindDevice, rpc.Message{"name": name})
	if err != nil {
		return nil, err
	}
	id, _ := reply["device"].(uint32)
	return c.GetDevice(id)
}

// GetDevice constructs a handle for id, caching its immutable attributes
// from one get-device RPC.
func (c *Client) GetDevice(id uint32) (*Device, error) {
	reply, err := c.t.Dispatch(rpc.OpGetDevice, rpc.Message{"device": id})
	if err != nil {
		return nil, err
	}
	name, _ := reply["name"].(string)
	page, _ := reply["page"].(uint16)
	usageID, _ := reply["id"].(uint16)
	counts := [wire.NumReportTypes]int{
		wire.ReportTypeInput:   asInt(reply["input reports"]),
		wire.ReportTypeOutput:  asInt(reply["output reports"]),
		wire.ReportTypeFeature: asInt(reply["feature reports"]),
	}
	return &Device{
		c: c, id: id, name: name,
		Usage:       wire.Usage{Page: page, ID: usageID},
		reportCount: counts,
	}, nil
}

func asInt(v any) int {
	n, _ := v.(int)
	return n
}

// Device is an immutable, cached handle addressed by device_id (§4.9).
type Device struct {
	c  *Client
	id uint32

	name        string
	Usage       wire.Usage
	reportCount [wire.NumReportTypes]int
}

// ID returns the device_id this handle addresses.
func (d *Device) ID() uint32 { return d.id }

// Name returns the device's cached display name.
func (d *Device) Name() string { return d.name }

// ReportCount returns the number of reports of the given type.
func (d *Device) ReportCount(t wire.ReportType) int { return d.reportCount[t] }

// Report addresses report index within the types selected by mask,
// linearized input-then-output-then-feature (§4.8 "Bitmask type
// selection"), caching its item count from one get-report RPC.
func (d *Device) Report(mask wire.TypeMask, index int) (*Report, error) {
	reply, err := d.c.t.Dispatch(rpc.OpGetReport, rpc.Message{"device": d.id, "type": uint32(mask), "report": uint32(index)})
	if err != nil {
		return nil, err
	}
	items, _ := reply["items"].(int)
	typ, _ := reply["type"].(wire.TypeMask)
	return &Report{device: d, mask: mask, index: index, resolvedType: typ, itemCount: items}, nil
}

// Report is addressed by (device_id, bitmask, linear index) — never by a
// service-side pointer.
type Report struct {
	device       *Device
	mask         wire.TypeMask
	index        int
	resolvedType wire.TypeMask
	itemCount    int

	pending []wire.ItemDatum
}

// Type returns the single resolved bitmask type this report turned out to
// be (§4.8: a mask may span types, but a specific linear index resolves
// to exactly one).
func (r *Report) Type() wire.TypeMask { return r.resolvedType }

// ItemCount returns the cached item count.
func (r *Report) ItemCount() int { return r.itemCount }

// Item addresses item index within this report, caching its immutable
// usage/relative attributes from one get-item RPC.
func (r *Report) Item(index int) (*Item, error) {
	reply, err := r.device.c.t.Dispatch(rpc.OpGetItem, rpc.Message{
		"device": r.device.id, "type": uint32(r.mask), "report": uint32(r.index), "item": uint32(index),
	})
	if err != nil {
		return nil, err
	}
	return r.itemFromReply(index, reply), nil
}

// FindItem resolves an item by HID usage within this device across the
// types selected by mask, regardless of which report owns it.
func (d *Device) FindItem(mask wire.TypeMask, page, id uint16) (*Item, error) {
	reply, err := d.c.t.Dispatch(rpc.OpFindItem, rpc.Message{"device": d.id, "type": uint32(mask), "page": page, "id": id})
	if err != nil {
		return nil, err
	}
	reportIndex := asInt(reply["report"])
	itemIndex := asInt(reply["item"])
	rep, err := d.Report(mask, reportIndex)
	if err != nil {
		return nil, err
	}
	return rep.itemFromReply(itemIndex, reply), nil
}

func (r *Report) itemFromReply(index int, reply rpc.Message) *Item {
	page, _ := reply["page"].(uint16)
	usageID, _ := reply["id"].(uint16)
	isRelative, _ := reply["relative"].(bool)
	return &Item{
		report: r, index: index,
		Usage: wire.Usage{Page: page, ID: usageID}, IsRelative: isRelative,
	}
}

// Item is addressed by (device_id, report, item index), caching usage and
// relative-flag (§4.9).
type Item struct {
	report *Report
	index  int

	Usage      wire.Usage
	IsRelative bool

	target *Target // non-nil while a subscription is live, for release-then-retarget
}

// PollValue fetches the item's last reported value via poll-item-value.
func (it *Item) PollValue() (float32, error) {
	reply, err := it.report.device.c.t.Dispatch(rpc.OpPollItemValue, rpc.Message{
		"device": it.report.device.id, "type": uint32(it.report.mask), "report": uint32(it.report.index), "item": uint32(it.index),
	})
	if err != nil {
		return 0, err
	}
	v, _ := reply["value"].(float32)
	return v, nil
}

// Target is a subscription sink; it tracks the opaque handle returned by a
// prior set-item-target RPC, so a later retarget/release can name it (§4.9
// "set_target(null) releases the subscription").
type Target struct {
	c      *Client
	team   int64
	port   int64
	token  int64
	handle any
}

// NewLocalTarget describes a subscription sink identified by
// (team, port, token) — the caller's message-port identity in the
// external remote-endpoint transport (§1, external collaborator (c)).
func (c *Client) NewLocalTarget(team, port, token int64) *Target {
	return &Target{c: c, team: team, port: port, token: token}
}

// SetTarget plumbs (team, port, token) for event delivery on this item,
// releasing any prior subscription first (§4.9). Passing a nil target
// releases the subscription without creating a new one.
func (it *Item) SetTarget(t *Target, cookie int64) error {
	req := rpc.Message{
		"device": it.report.device.id, "type": uint32(it.report.mask),
		"report": uint32(it.report.index), "item": uint32(it.index),
		"cookie": cookie,
	}
	if it.target != nil {
		req["target"] = it.target.handle
	}
	if t == nil {
		req["team"], req["port"], req["token"] = int64(-1), int64(-1), int64(0)
	} else {
		req["team"], req["port"], req["token"] = t.team, t.port, t.token
	}
	reply, err := it.report.device.c.t.Dispatch(rpc.OpSetItemTarget, req)
	if err != nil {
		return err
	}
	if t == nil {
		it.target = nil
		return nil
	}
	t.handle = reply["target"]
	it.target = t
	return nil
}

// SetItemValue stages value for item in this report's pending outbound
// buffer; it performs no RPC until Send is called (§4.9 batched-send
// pattern).
func (r *Report) SetItemValue(itemIndex int, value float32) {
	for i, d := range r.pending {
		if int(d.Index) == itemIndex {
			r.pending[i].Value = value
			return
		}
	}
	r.pending = append(r.pending, wire.ItemDatum{Index: int32(itemIndex), Value: value})
}

// Send flushes every staged item value as a single send-report RPC, then
// clears the pending buffer.
func (r *Report) Send() error {
	if len(r.pending) == 0 {
		return nil
	}
	_, err := r.device.c.t.Dispatch(rpc.OpSendReport, rpc.Message{
		"device": r.device.id, "type": uint32(r.mask), "report": uint32(r.index), "data": r.pending,
	})
	r.pending = nil
	return err
}

// MakeEmpty discards any staged values without sending them (§4.9).
func (r *Report) MakeEmpty() {
	r.pending = nil
}
