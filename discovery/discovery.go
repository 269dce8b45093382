// Package discovery implements the device discovery loop (§4.7): an
// initial recursive scan plus a path-monitor subscription for subsequent
// entry-created events. entry-removed is intentionally not observed
// (§4.7, §9 "Open questions"): removal is driven by the reader thread
// observing device-not-ready (see package device).
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/malivvan/uis/kerneldev"
)

// Adder is the subset of device.Registry discovery needs; satisfied by
// *device.Registry.
type Adder interface {
	Add(kernel kerneldev.Handle, path string) (id uint32, added bool, err error)
}

// Opener abstracts kerneldev.Open so tests can substitute a simulated
// backend for the monitored directory's entries.
type Opener func(path string) (kerneldev.Handle, error)

// Discovery watches Root for application-collection pseudo-files and adds
// each one found to Registry.
type Discovery struct {
	Root     string
	Registry Adder
	Open     Opener
	Log      zerolog.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New constructs a Discovery. If open is nil, kerneldev.Open is used.
func New(root string, registry Adder, open Opener, log zerolog.Logger) *Discovery {
	if open == nil {
		open = kerneldev.Open
	}
	return &Discovery{Root: root, Registry: registry, Open: open, Log: log.With().Str("component", "discovery").Logger()}
}

// Start subscribes to Root for entry-created events and performs one
// recursive scan, adding every regular file found (§4.7).
func (d *Discovery) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("discovery: new watcher: %w", err)
	}
	d.watcher = w

	if err := addRecursiveWatches(w, d.Root); err != nil {
		_ = w.Close()
		return fmt.Errorf("discovery: watch %s: %w", d.Root, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	go d.watchLoop(runCtx)

	return d.scan()
}

// scan performs the one-time recursive directory walk (§4.7 step 2),
// calling add(path) on every regular file.
func (d *Discovery) scan() error {
	return filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if entry.Type().IsRegular() {
			d.add(path)
		}
		return nil
	})
}

func (d *Discovery) watchLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create) == 0 {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				_ = d.watcher.Add(ev.Name)
				continue
			}
			d.add(ev.Name)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.Log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// add is idempotent: it is a no-op if path is already registered (§4.7,
// §8 "Idempotent add").
func (d *Discovery) add(path string) {
	kernel, err := d.Open(path)
	if err != nil {
		d.Log.Warn().Err(err).Str("path", path).Msg("failed to open candidate device")
		return
	}
	id, added, err := d.Registry.Add(kernel, path)
	if err != nil {
		d.Log.Warn().Err(err).Str("path", path).Msg("failed to add device")
		return
	}
	if !added {
		d.Log.Debug().Str("path", path).Msg("device already present")
		return
	}
	d.Log.Info().Uint32("device", id).Str("path", path).Msg("device discovered")
}

// Stop unsubscribes from path monitoring (§5 "Cancellation & shutdown").
func (d *Discovery) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	d.wg.Wait()
}

func addRecursiveWatches(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
