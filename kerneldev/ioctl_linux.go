//go:build linux

package kerneldev

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/malivvan/uis/wire"
)

// fileHandle issues the service's ioctl set against a real kernel
// pseudo-file, adapted from the teacher's HidrawOtpConn._IOC plumbing
// (hid/hid_linux.go) but generalized to this module's own opcode set
// instead of HIDIOCGFEATURE/HIDIOCSFEATURE.
type fileHandle struct {
	f  *os.File
	fd int
	mu sync.Mutex
}

func open(path string) (Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("kerneldev: open %s: %w", path, wire.ErrIOFailed)
	}
	return &fileHandle{f: f, fd: int(f.Fd())}, nil
}

// Linux _IOC helpers (arch-independent), same shape as the teacher's.
const (
	iocNrbits   = 8
	iocTypebits = 8
	iocSizebits = 14
	iocDirbits  = 2

	iocNrshift   = 0
	iocTypeshift = iocNrshift + iocNrbits
	iocSizeshift = iocTypeshift + iocTypebits
	iocDirshift  = iocSizeshift + iocSizebits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func iocEncode(dir uintptr, typ byte, nr wire.Opcode, size uintptr) uintptr {
	return (dir << iocDirshift) | (uintptr(typ) << iocTypeshift) | (uintptr(nr) << iocNrshift) | (size << iocSizeshift)
}

// ioUnit magic type byte for this module's kernel pseudo-files, distinct
// from the 'H' hidraw namespace the teacher used.
const ioUnit byte = 'U'

func (h *fileHandle) ioctl(dir uintptr, op wire.Opcode, buf []byte) error {
	// READ blocks until data arrives or a STOP releases it, so it must not
	// hold the lock that STOP (and the other ioctls) take.
	if op != wire.OpRead {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	if len(buf) == 0 {
		buf = make([]byte, 1)
	}
	req := iocEncode(dir, ioUnit, op, uintptr(len(buf)))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		if errno == unix.ENODEV || errno == unix.ENXIO {
			return fmt.Errorf("kerneldev: %s: %w", op, wire.ErrDeviceGone)
		}
		return fmt.Errorf("kerneldev: %s: %w (errno %d)", op, wire.ErrIOFailed, errno)
	}
	return nil
}

func (h *fileHandle) DeviceInfo() (wire.DeviceInfo, error) {
	buf := make([]byte, 64)
	if err := h.ioctl(iocRead, wire.OpDeviceInfo, buf); err != nil {
		return wire.DeviceInfo{}, err
	}
	var di wire.DeviceInfo
	if err := di.UnmarshalBinary(buf); err != nil {
		return wire.DeviceInfo{}, err
	}
	return di, nil
}

func (h *fileHandle) ReportInfo(t wire.ReportType, index int) (wire.ReportInfoReply, error) {
	buf := make([]byte, 32)
	buf[0] = byte(t)
	putI32(buf[4:8], int32(index))
	if err := h.ioctl(iocRead|iocWrite, wire.OpReportInfo, buf); err != nil {
		return wire.ReportInfoReply{}, err
	}
	return wire.ReportInfoReply{
		Report:    getU64(buf[8:16]),
		ID:        buf[16],
		ItemCount: getI32(buf[20:24]),
	}, nil
}

func (h *fileHandle) ItemInfo(report uint64, index int) (wire.ItemInfoReply, error) {
	buf := make([]byte, 32)
	putU64(buf[0:8], report)
	putI32(buf[8:12], int32(index))
	if err := h.ioctl(iocRead|iocWrite, wire.OpItemInfo, buf); err != nil {
		return wire.ItemInfoReply{}, err
	}
	return wire.ItemInfoReply{
		Item:       getU64(buf[12:20]),
		Usage:      wire.Usage{Page: getU16(buf[20:22]), ID: getU16(buf[22:24])},
		IsRelative: buf[24] != 0,
	}, nil
}

func (h *fileHandle) StringInfo(id uint32) ([]byte, wire.StringEncoding, error) {
	probe := make([]byte, 16)
	putU32(probe[0:4], id)
	if err := h.ioctl(iocRead|iocWrite, wire.OpStringInfo, probe); err != nil {
		return nil, 0, err
	}
	length := getI32(probe[4:8])
	encoding := wire.StringEncoding(getU32(probe[12:16]))
	if length <= 0 {
		return nil, encoding, nil
	}

	fill := make([]byte, 16+length)
	putU32(fill[0:4], id)
	putI32(fill[4:8], length)
	putU32(fill[12:16], uint32(encoding))
	if err := h.ioctl(iocRead|iocWrite, wire.OpStringInfo, fill); err != nil {
		return nil, 0, err
	}
	return fill[16 : 16+length], encoding, nil
}

func (h *fileHandle) Read(report uint64) (wire.ReportData, error) {
	// The fill buffer holds a header plus at most 64 item records and is
	// allocated anew on every call; it is not reused across reads.
	buf := make([]byte, 12+64*8)
	putU64(buf[0:8], report)
	if err := h.ioctl(iocRead|iocWrite, wire.OpRead, buf); err != nil {
		return wire.ReportData{}, err
	}
	var rd wire.ReportData
	if err := rd.UnmarshalBinary(buf); err != nil {
		return wire.ReportData{}, err
	}
	return rd, nil
}

func (h *fileHandle) Send(data wire.ReportData) error {
	buf, err := data.MarshalBinary()
	if err != nil {
		return err
	}
	return h.ioctl(iocWrite, wire.OpSend, buf)
}

func (h *fileHandle) Stop(report uint64) error {
	buf := make([]byte, 8)
	putU64(buf, report)
	return h.ioctl(iocWrite, wire.OpStop, buf)
}

func (h *fileHandle) Close() error {
	return h.f.Close()
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
func putI32(b []byte, v int32) { putU32(b, uint32(v)) }
func getI32(b []byte) int32    { return int32(getU32(b)) }
func getU16(b []byte) uint16   { return uint16(b[0]) | uint16(b[1])<<8 }
