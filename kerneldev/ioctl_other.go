//go:build !linux

package kerneldev

import (
	"fmt"
	"runtime"

	"github.com/malivvan/uis/wire"
)

// open on non-Linux platforms has no real kernel pseudo-file to talk to
// (the driver side of this system is Linux/Haiku-specific), matching the
// teacher's Enumerate/Open no-op fallback for unsupported platforms
// (karalabe/hid's hid_disabled.go). Use Sim for development and tests on
// these platforms.
func open(path string) (Handle, error) {
	return nil, fmt.Errorf("kerneldev: %s unsupported on %s: %w", path, runtime.GOOS, wire.ErrIOFailed)
}
