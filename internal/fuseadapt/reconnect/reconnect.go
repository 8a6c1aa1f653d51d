// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reconnect implements the FUSE client's exponential-backoff
// reconnect state machine (spec.md §4.12): Connected -> Disconnected ->
// Reconnecting{attempt} -> Failed. Delay math and jitter are spec-exact
// arithmetic with no ecosystem counterpart, so this stays on stdlib
// math/rand/time by necessity, the same way internal/access stays on
// stdlib for POSIX bit arithmetic.
package reconnect

import (
	"math"
	"math/rand"
	"time"

	"github.com/dreamware/distfs/clock"
	"github.com/dreamware/distfs/internal/config"
)

// State is the reconnect state machine's current phase.
type State int

const (
	StateConnected State = iota
	StateDisconnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Machine tracks one connection's reconnect backoff.
type Machine struct {
	cfg     config.Reconnect
	clk     clock.Clock
	rng     *rand.Rand
	state   State
	attempt int
}

// New constructs a Machine starting Disconnected.
func New(cfg config.Reconnect, clk clock.Clock) *Machine {
	return &Machine{
		cfg:   cfg,
		clk:   clk,
		rng:   rand.New(rand.NewSource(1)),
		state: StateDisconnected,
	}
}

// State reports the machine's current phase.
func (m *Machine) State() State { return m.state }

// Attempt reports the current reconnect attempt count.
func (m *Machine) Attempt() int { return m.attempt }

// OnConnected resets the machine to Connected with the attempt counter
// cleared.
func (m *Machine) OnConnected() {
	m.state = StateConnected
	m.attempt = 0
}

// OnDisconnected transitions Connected -> Reconnecting{attempt=1}.
func (m *Machine) OnDisconnected() {
	if m.attempt == 0 {
		m.attempt = 1
	} else {
		m.attempt++
	}
	m.state = StateReconnecting
}

// NextDelay computes delay_n = min(initial * multiplier^attempt, max),
// then subtracts a bounded random jitter fraction if enabled.
func (m *Machine) NextDelay() time.Duration {
	var base time.Duration
	if m.attempt == 0 {
		base = m.cfg.InitialDelay
	} else {
		scaled := float64(m.cfg.InitialDelay) * math.Pow(m.cfg.Multiplier, float64(m.attempt))
		base = time.Duration(math.Min(scaled, float64(m.cfg.MaxDelay)))
	}

	if !m.cfg.Jitter {
		return base
	}

	jitterRange := time.Duration(float64(base) * jitterFraction)
	if jitterRange <= 0 {
		return base
	}
	jitterVal := time.Duration(m.rng.Int63n(int64(jitterRange)))
	delay := base - jitterVal
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return delay
}

// jitterFraction mirrors the 10% default the original reconnect logic
// used; the config only toggles jitter on/off, not its magnitude.
const jitterFraction = 0.1

// ShouldGiveUp reports whether attempt has reached max_attempts.
func (m *Machine) ShouldGiveUp() bool {
	return m.attempt >= m.cfg.MaxAttempts
}

// AdvanceAttempt increments the attempt counter, moving to Failed once
// max_attempts is reached.
func (m *Machine) AdvanceAttempt() {
	m.attempt++
	if m.ShouldGiveUp() {
		m.state = StateFailed
	} else {
		m.state = StateReconnecting
	}
}

// IsRetrying reports whether the machine is currently in Reconnecting.
func (m *Machine) IsRetrying() bool {
	return m.state == StateReconnecting
}

// RetryWithBackoff retries op until it succeeds (-> Connected, counters
// reset) or the machine reaches Failed, sleeping via the machine's clock
// between attempts.
func RetryWithBackoff[T any](m *Machine, op func() (T, error)) (T, error) {
	for {
		result, err := op()
		if err == nil {
			m.OnConnected()
			return result, nil
		}

		if !m.IsRetrying() && !m.ShouldGiveUp() {
			m.OnDisconnected()
		}
		if m.ShouldGiveUp() {
			return result, err
		}

		delay := m.NextDelay()
		<-m.clk.After(delay)
		m.AdvanceAttempt()
	}
}
