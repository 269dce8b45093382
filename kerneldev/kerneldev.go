// Package kerneldev is the ioctl transport to a kernel-published HID
// application-collection pseudo-file (§4.1, §6). The kernel-side HID
// parser is an external collaborator out of this module's scope (§1); this
// package only issues the fixed ioctl set against an already-open file.
//
// Two backends implement Handle: a Linux one (ioctl_linux.go) built on
// golang.org/x/sys/unix raw ioctl syscalls, adapted from the teacher's
// hidraw feature-report plumbing, and a Sim one (sim.go) that drives the
// same interface from an in-memory fake device, used by tests and by the
// demo CLI when --simulate is set.
package kerneldev

import "github.com/malivvan/uis/wire"

// Handle is everything the service needs from one open kernel pseudo-file.
type Handle interface {
	// DeviceInfo issues DEVICE_INFO.
	DeviceInfo() (wire.DeviceInfo, error)
	// ReportInfo issues REPORT_INFO for the index'th report of type t.
	ReportInfo(t wire.ReportType, index int) (wire.ReportInfoReply, error)
	// ItemInfo issues ITEM_INFO for the index'th item of report.
	ItemInfo(report uint64, index int) (wire.ItemInfoReply, error)
	// StringInfo performs the two-phase STRING_INFO probe-then-fill and
	// returns the raw (untranscoded) bytes and the encoding tag.
	StringInfo(id uint32) ([]byte, wire.StringEncoding, error)
	// Read blocks until the kernel delivers a report_data for report, or
	// returns an error. It is unblocked by a concurrent Stop(report).
	Read(report uint64) (wire.ReportData, error)
	// Send issues SEND for an output/feature report.
	Send(data wire.ReportData) error
	// Stop issues STOP, releasing a pending Read on report.
	Stop(report uint64) error
	// Close releases the underlying file descriptor.
	Close() error
}

// Open opens path as a kernel pseudo-file. The concrete backend is chosen
// per-platform at build time (see ioctl_linux.go / ioctl_other.go).
func Open(path string) (Handle, error) {
	return open(path)
}
