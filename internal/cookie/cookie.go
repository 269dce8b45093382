// Package cookie renders opaque identifiers (device ids, target tokens,
// subscription cookies) as short modhex strings for log lines and the
// monitor TUI, and sorts them for stable debug listings. Adapted from the
// teacher's mhex modhex codec, repurposed from YubiKey OTP ciphertext
// framing to compact identifier rendering.
package cookie

import (
	"fmt"

	"golang.org/x/exp/slices"
)

var stdAlphabet = []byte("cbdefghijklnrtuv")

// Render encodes v as an 8-character modhex string, used for short,
// visually distinct identifiers in log fields and TUI rows.
func Render(v uint32) string {
	var buf [8]byte
	for i := 0; i < 4; i++ {
		b := byte(v >> (8 * (3 - i)))
		buf[i*2] = stdAlphabet[b>>4]
		buf[i*2+1] = stdAlphabet[b&0x0F]
	}
	return string(buf[:])
}

// Parse decodes a string produced by Render.
func Parse(s string) (uint32, error) {
	if len(s) != 8 {
		return 0, fmt.Errorf("cookie: %q: expected 8 modhex characters", s)
	}
	index := func(c byte) (byte, error) {
		for i, a := range stdAlphabet {
			if a == c {
				return byte(i), nil
			}
		}
		return 0, fmt.Errorf("cookie: %q: invalid modhex character %q", s, c)
	}
	var v uint32
	for i := 0; i < 8; i += 2 {
		hi, err := index(s[i])
		if err != nil {
			return 0, err
		}
		lo, err := index(s[i+1])
		if err != nil {
			return 0, err
		}
		v = v<<8 | uint32(hi)<<4 | uint32(lo)
	}
	return v, nil
}

// TargetDesc is the debug-rendering projection of a live target.
type TargetDesc struct {
	Token   int64
	Port    int64
	Cookies []int64
}

// SortTargets orders descs by Token ascending, then by Port, giving a
// stable debug listing independent of the registry's internal slice
// order (which reflects insertion, not identity).
func SortTargets(descs []TargetDesc) {
	slices.SortFunc(descs, func(a, b TargetDesc) int {
		if a.Token != b.Token {
			if a.Token < b.Token {
				return -1
			}
			return 1
		}
		if a.Port < b.Port {
			return -1
		}
		if a.Port > b.Port {
			return 1
		}
		return 0
	})
}
