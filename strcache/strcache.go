// Package strcache implements the lazy, cached device/vendor string
// resolution described in §4.2: a two-phase kernel probe-then-fetch,
// transcoded to UTF-8, trimmed, and cached until device teardown.
package strcache

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"github.com/malivvan/uis/wire"
)

// Fetcher performs the underlying two-phase STRING_INFO ioctl (implemented
// by kerneldev.Handle).
type Fetcher interface {
	StringInfo(id uint32) (data []byte, encoding wire.StringEncoding, err error)
}

// Cache resolves and caches one device's strings by kernel string id.
// Construct one with New; the zero value has no Fetcher and no map.
type Cache struct {
	fetch Fetcher
	byID  map[uint32]entry
}

type entry struct {
	resolved bool // SPEC_FULL supplemented feature #5: distinguishes "resolved empty" from "never resolved"
	value    string
}

// New constructs a Cache backed by fetch.
func New(fetch Fetcher) *Cache {
	return &Cache{fetch: fetch, byID: make(map[uint32]entry)}
}

// String resolves id, returning "" and not-available if either ioctl
// phase or transcoding fails. A failed resolution is never cached and is
// retried on the next call; a successful-but-empty resolution is cached.
func (c *Cache) String(id uint32) (string, error) {
	if e, ok := c.byID[id]; ok && e.resolved {
		return e.value, nil
	}

	raw, enc, err := c.fetch.StringInfo(id)
	if err != nil {
		return "", fmt.Errorf("strcache: id %d: not-available: %w", id, err)
	}
	if len(raw) == 0 {
		c.byID[id] = entry{resolved: true, value: ""}
		return "", nil
	}

	s, err := transcode(raw, enc)
	if err != nil {
		return "", fmt.Errorf("strcache: id %d: not-available: %w", id, err)
	}
	s = strings.TrimSpace(s)
	c.byID[id] = entry{resolved: true, value: s}
	return s, nil
}

// transcode converts raw kernel bytes to UTF-8 per the encoding tag the
// kernel returned from STRING_INFO.
func transcode(raw []byte, enc wire.StringEncoding) (string, error) {
	switch enc {
	case wire.StringEncodingASCII:
		return string(raw), nil
	case wire.StringEncodingUTF16LE:
		if len(raw)%2 != 0 {
			return "", fmt.Errorf("strcache: odd-length utf16le payload (%d bytes)", len(raw))
		}
		units := make([]uint16, len(raw)/2)
		for i := range units {
			units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		}
		return string(utf16.Decode(units)), nil
	case wire.StringEncodingLatin1:
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("strcache: latin1 decode: %w", err)
		}
		return string(decoded), nil
	default:
		return "", fmt.Errorf("strcache: unknown encoding tag %d", enc)
	}
}

// Forget drops id's cached entry, if any, so the next String call for id
// fetches it again.
func (c *Cache) Forget(id uint32) {
	delete(c.byID, id)
}
