// Package wire defines the fixed binary layouts and ioctl opcodes shared
// between the Input Service and a kernel-side HID application-collection
// pseudo-file, plus the error taxonomy used throughout the service (§7).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Opcode identifies one of the ioctl operations a kernel pseudo-file
// supports (§4.1, §6).
type Opcode uint32

const (
	OpDeviceInfo Opcode = iota + 1
	OpReportInfo
	OpItemInfo
	OpStringInfo
	OpRead
	OpSend
	OpStop
)

func (o Opcode) String() string {
	switch o {
	case OpDeviceInfo:
		return "DEVICE_INFO"
	case OpReportInfo:
		return "REPORT_INFO"
	case OpItemInfo:
		return "ITEM_INFO"
	case OpStringInfo:
		return "STRING_INFO"
	case OpRead:
		return "READ"
	case OpSend:
		return "SEND"
	case OpStop:
		return "STOP"
	default:
		return fmt.Sprintf("opcode(%d)", uint32(o))
	}
}

// ReportType is the kernel ioctl boundary's zero-based report type index
// (§4.8: "the service converts to/from the internal zero-based index").
type ReportType uint8

const (
	ReportTypeInput ReportType = iota
	ReportTypeOutput
	ReportTypeFeature
	NumReportTypes = 3
)

func (t ReportType) String() string {
	switch t {
	case ReportTypeInput:
		return "input"
	case ReportTypeOutput:
		return "output"
	case ReportTypeFeature:
		return "feature"
	default:
		return "invalid"
	}
}

// TypeMask is the client/RPC-boundary bitmask encoding (§4.8).
type TypeMask uint8

const (
	MaskInput   TypeMask = 1
	MaskOutput  TypeMask = 2
	MaskFeature TypeMask = 4
)

// Types returns the report types selected by the mask, in linearized
// input-then-output-then-feature order (used by get-report, §8 "Bitmask
// type selection").
func (m TypeMask) Types() []ReportType {
	var out []ReportType
	if m&MaskInput != 0 {
		out = append(out, ReportTypeInput)
	}
	if m&MaskOutput != 0 {
		out = append(out, ReportTypeOutput)
	}
	if m&MaskFeature != 0 {
		out = append(out, ReportTypeFeature)
	}
	return out
}

func (m TypeMask) String() string {
	var parts []string
	if m&MaskInput != 0 {
		parts = append(parts, "input")
	}
	if m&MaskOutput != 0 {
		parts = append(parts, "output")
	}
	if m&MaskFeature != 0 {
		parts = append(parts, "feature")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// FromReportType converts a single zero-based kernel index to its bitmask
// representation, for composing RPC replies.
func FromReportType(t ReportType) TypeMask {
	switch t {
	case ReportTypeInput:
		return MaskInput
	case ReportTypeOutput:
		return MaskOutput
	case ReportTypeFeature:
		return MaskFeature
	default:
		return 0
	}
}

// Usage is HID's two-level taxonomy identifying what a control means.
type Usage struct {
	Page uint16
	ID   uint16
}

// DeviceInfo is the DEVICE_INFO ioctl reply (§6).
type DeviceInfo struct {
	Usage       Usage
	ReportCount [NumReportTypes]int32
	NameID      uint32
}

const deviceInfoSize = 2 + 2 + 4*NumReportTypes + 4

// MarshalBinary encodes DeviceInfo in the fixed little-endian layout used
// on the wire between the service and the kernel pseudo-file.
func (d DeviceInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, deviceInfoSize)
	binary.LittleEndian.PutUint16(buf[0:2], d.Usage.Page)
	binary.LittleEndian.PutUint16(buf[2:4], d.Usage.ID)
	for i, c := range d.ReportCount {
		binary.LittleEndian.PutUint32(buf[4+i*4:8+i*4], uint32(c))
	}
	binary.LittleEndian.PutUint32(buf[4+NumReportTypes*4:], d.NameID)
	return buf, nil
}

func (d *DeviceInfo) UnmarshalBinary(buf []byte) error {
	if len(buf) < deviceInfoSize {
		return fmt.Errorf("wire: DeviceInfo: short buffer (%d < %d): %w", len(buf), deviceInfoSize, ErrIOFailed)
	}
	d.Usage.Page = binary.LittleEndian.Uint16(buf[0:2])
	d.Usage.ID = binary.LittleEndian.Uint16(buf[2:4])
	for i := range d.ReportCount {
		d.ReportCount[i] = int32(binary.LittleEndian.Uint32(buf[4+i*4 : 8+i*4]))
	}
	d.NameID = binary.LittleEndian.Uint32(buf[4+NumReportTypes*4:])
	return nil
}

// ReportInfoRequest is the REPORT_INFO ioctl's inbound struct.
type ReportInfoRequest struct {
	Type  ReportType
	Index int32
}

// ReportInfoReply is the REPORT_INFO ioctl's outbound struct.
type ReportInfoReply struct {
	Report    uint64 // opaque kernel report handle
	ID        uint8
	ItemCount int32
}

// ItemInfoRequest is the ITEM_INFO ioctl's inbound struct.
type ItemInfoRequest struct {
	Report uint64
	Index  int32
}

// ItemInfoReply is the ITEM_INFO ioctl's outbound struct.
type ItemInfoReply struct {
	Item       uint64
	Usage      Usage
	IsRelative bool
}

// StringEncoding tags the transcoding the kernel used for a STRING_INFO
// payload (§4.2).
type StringEncoding uint32

const (
	StringEncodingASCII StringEncoding = iota
	StringEncodingUTF16LE
	StringEncodingLatin1
)

// StringInfo is the two-phase STRING_INFO ioctl's in/out struct: a caller
// issues it with String == nil to probe Length, then reissues with a
// Length-sized buffer to fill it.
type StringInfo struct {
	ID       uint32
	Length   int32
	String   []byte
	Encoding StringEncoding
}

// ItemDatum is a single (index, value) record inside a report_data body.
type ItemDatum struct {
	Index int32
	Value float32
}

const itemDatumSize = 4 + 4

// ReportData is the READ ioctl's fill buffer and the SEND ioctl's payload:
// a header (opaque report handle + item count) followed by item records.
type ReportData struct {
	Report uint64
	Items  []ItemDatum
}

// MarshalBinary encodes a ReportData for a SEND ioctl.
func (r ReportData) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8+4+len(r.Items)*itemDatumSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.Report)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(r.Items)))
	for i, it := range r.Items {
		o := 12 + i*itemDatumSize
		binary.LittleEndian.PutUint32(buf[o:o+4], uint32(it.Index))
		binary.LittleEndian.PutUint32(buf[o+4:o+8], math.Float32bits(it.Value))
	}
	return buf, nil
}

// UnmarshalBinary decodes a ReportData filled by a READ ioctl.
func (r *ReportData) UnmarshalBinary(buf []byte) error {
	if len(buf) < 12 {
		return fmt.Errorf("wire: ReportData: short header: %w", ErrIOFailed)
	}
	r.Report = binary.LittleEndian.Uint64(buf[0:8])
	n := int(binary.LittleEndian.Uint32(buf[8:12]))
	if len(buf) < 12+n*itemDatumSize {
		return fmt.Errorf("wire: ReportData: short body (%d items): %w", n, ErrIOFailed)
	}
	r.Items = make([]ItemDatum, n)
	for i := range r.Items {
		o := 12 + i*itemDatumSize
		r.Items[i] = ItemDatum{
			Index: int32(binary.LittleEndian.Uint32(buf[o : o+4])),
			Value: math.Float32frombits(binary.LittleEndian.Uint32(buf[o+4 : o+8])),
		}
	}
	return nil
}

// Error taxonomy (§7). These are sentinels: call sites wrap them with
// fmt.Errorf("...: %w", ErrBadValue) and callers compare with errors.Is.
var (
	ErrIOFailed     = errors.New("io-failed")
	ErrDeviceGone   = errors.New("device-gone")
	ErrBadValue     = errors.New("bad-value")
	ErrEndpointGone = errors.New("endpoint-gone")
	ErrNoResource   = errors.New("no-resource")
	ErrInvalidOp    = errors.New("invalid-op")

	// ErrReportStopped is returned by a blocked Read when it was unblocked
	// by an explicit STOP rather than the device going not-ready (§4.1,
	// §4.3): a released read, not a lost device.
	ErrReportStopped = errors.New("report-stopped")
)
