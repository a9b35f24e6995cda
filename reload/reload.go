// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reload implements the periodic shouldReload/doReload driver
// shared by the KeystoreKeyStrategy and ScriptedKeyStrategy. It is adapted
// from the watch-loop shape of serverutil/perm.Perm: a single background
// goroutine that swaps state under a lock while readers never block on it,
// with deterministic, non-blocking-to-readers cancellation.
package reload

import (
	"sync"
	"time"
)

// Driver runs reload on a fixed interval, skipping a tick when shouldReload
// reports false. Exactly one Driver goroutine runs per KeyStrategy
// instance; Start must be called at most once.
type Driver struct {
	interval     time.Duration
	shouldReload func() bool
	reload       func() error
	onTick       func(err error) // test hook, invoked after every reload attempt

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	done      chan struct{}
	stopped   chan struct{}
}

// New returns a Driver that calls reload every interval, skipping the call
// when shouldReload is non-nil and returns false.
func New(interval time.Duration, shouldReload func() bool, reload func() error) *Driver {
	return &Driver{
		interval:     interval,
		shouldReload: shouldReload,
		reload:       reload,
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// OnTick installs a test hook called after every reload attempt (including
// skipped ones, with a nil error) from the driver's own goroutine. It must
// be called before Start.
func (d *Driver) OnTick(f func(err error)) {
	d.onTick = f
}

// Start launches the background reload loop. It is safe to call only once;
// subsequent calls are no-ops.
func (d *Driver) Start() {
	d.startOnce.Do(func() {
		d.started = true
		go d.run()
	})
}

func (d *Driver) run() {
	defer close(d.stopped)
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-t.C:
			d.tick()
		}
	}
}

func (d *Driver) tick() {
	var err error
	if d.shouldReload == nil || d.shouldReload() {
		err = d.reload()
	}
	if d.onTick != nil {
		d.onTick(err)
	}
}

// Stop cancels the reload loop and waits for any in-flight tick to run to
// completion. It is idempotent and does not deadlock with a concurrently
// executing tick, since the tick runs on the driver's own goroutine.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	if d.started {
		<-d.stopped
	}
}
