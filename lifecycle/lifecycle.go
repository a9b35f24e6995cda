// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lifecycle implements the CREATED -> INITIALIZED -> DESTROYED
// state machine shared by DataSealer and the KeyStrategy variants. The
// source material models this with a "configurable, reloadable,
// destroyable component" base class; here it is an explicit, checked state
// machine embedded by value, rather than inheritance.
package lifecycle

import (
	"sync/atomic"

	"sealcore.io/errors"
)

// State is one of the three lifecycle states.
type State int32

// States, in the only order a component may pass through them.
const (
	Created State = iota
	Initialized
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Initialized:
		return "initialized"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

// Guard is an embeddable lifecycle state machine. Its zero value is
// Created. It is safe for concurrent use.
type Guard struct {
	state int32
}

// State returns the current state.
func (g *Guard) State() State {
	return State(atomic.LoadInt32(&g.state))
}

// Initialize transitions Created -> Initialized. It fails if the guard is
// not currently Created (for example, because it was already initialized,
// or destroyed before ever being initialized).
func (g *Guard) Initialize(component string, op errors.Op) error {
	if !atomic.CompareAndSwapInt32(&g.state, int32(Created), int32(Initialized)) {
		return errors.E(component, op, errors.ComponentInitError,
			errors.Str("component is not in the Created state"))
	}
	return nil
}

// Destroy transitions to Destroyed from any state. It is idempotent: the
// second and subsequent calls are no-ops, reported via the return value.
func (g *Guard) Destroy() (transitioned bool) {
	for {
		cur := atomic.LoadInt32(&g.state)
		if State(cur) == Destroyed {
			return false
		}
		if atomic.CompareAndSwapInt32(&g.state, cur, int32(Destroyed)) {
			return true
		}
	}
}

// RequireInitialized returns a ComponentInitError-kind error unless the
// guard is currently Initialized. wrap/unwrap-style operations call this
// before doing any work.
func (g *Guard) RequireInitialized(component string, op errors.Op) error {
	if g.State() != Initialized {
		return errors.E(component, op, errors.ComponentInitError,
			errors.Str("component is not initialized"))
	}
	return nil
}

// RequireCreated returns a ComponentInitError-kind error unless the guard
// is currently Created. Setters that may only run before initialization
// call this.
func (g *Guard) RequireCreated(component string, op errors.Op) error {
	if g.State() != Created {
		return errors.E(component, op, errors.ComponentInitError,
			errors.Str("component is no longer in the Created state"))
	}
	return nil
}
