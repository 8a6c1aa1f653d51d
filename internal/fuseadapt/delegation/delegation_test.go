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

package delegation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/distfs/clock"
	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/types"
)

func TestGrantWriteConflictsWithActiveRead(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	_, err := m.Grant(1, KindRead, "a")
	require.NoError(t, err)

	_, err = m.Grant(1, KindWrite, "b")
	var conflict *distfserrors.ConflictingError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, distfserrors.ConflictingRead, conflict.Kind)
}

func TestGrantAnyConflictsWithActiveWrite(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	_, err := m.Grant(1, KindWrite, "a")
	require.NoError(t, err)

	_, err = m.Grant(1, KindRead, "b")
	var conflict *distfserrors.ConflictingError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, distfserrors.ConflictingWrite, conflict.Kind)
}

func TestMultipleReadsDoNotConflict(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	_, err := m.Grant(1, KindRead, "a")
	require.NoError(t, err)
	_, err = m.Grant(1, KindRead, "b")
	require.NoError(t, err)
}

func TestRecallForInoMovesActiveToRecalled(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	d, err := m.Grant(1, KindRead, "a")
	require.NoError(t, err)

	recalled := m.RecallForIno(1)
	assert.Equal(t, []ID{d.ID}, recalled)

	got, _ := m.Get(d.ID)
	assert.Equal(t, StateRecalled, got.State)
}

func TestRecallForInoReturnsOnlyRecalledIDs(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	d1, _ := m.Grant(1, KindRead, "a")
	d2, _ := m.Grant(1, KindRead, "b")
	require.NoError(t, m.Return(d1.ID))

	recalled := m.RecallForIno(1)
	assert.Equal(t, []ID{d2.ID}, recalled)
}

func TestSubscribeNotifiedOnRecall(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	var seen []Delegation
	unsubscribe := m.Subscribe(func(d Delegation) { seen = append(seen, d) })
	defer unsubscribe()

	d, _ := m.Grant(1, KindRead, "a")
	m.RecallForIno(1)

	require.Len(t, seen, 1)
	assert.Equal(t, d.ID, seen[0].ID)
	assert.Equal(t, StateRecalled, seen[0].State)
}

func TestSubscribeNotifiedOnRevoke(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	var seen []Delegation
	m.Subscribe(func(d Delegation) { seen = append(seen, d) })

	d, _ := m.Grant(1, KindRead, "a")
	require.NoError(t, m.Revoke(d.ID))

	require.Len(t, seen, 1)
	assert.Equal(t, StateRevoked, seen[0].State)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	var seen []Delegation
	unsubscribe := m.Subscribe(func(d Delegation) { seen = append(seen, d) })
	unsubscribe()

	_, _ = m.Grant(1, KindRead, "a")
	m.RecallForIno(1)

	assert.Empty(t, seen)
}

func TestReturnFromActiveOrRecalledSucceeds(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	d, _ := m.Grant(1, KindRead, "a")
	require.NoError(t, m.Return(d.ID))

	got, _ := m.Get(d.ID)
	assert.Equal(t, StateReturned, got.State)
}

func TestReturnFromReturnedFails(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	d, _ := m.Grant(1, KindRead, "a")
	require.NoError(t, m.Return(d.ID))
	assert.Error(t, m.Return(d.ID))
}

func TestRevokeExpiredMovesPastLeaseDeadline(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, 10*time.Second)

	d, _ := m.Grant(1, KindRead, "a")
	clk.SetTime(time.Unix(0, 0).Add(20 * time.Second))

	revoked := m.RevokeExpired(clk.Now())
	assert.Contains(t, revoked, d.ID)

	got, _ := m.Get(d.ID)
	assert.Equal(t, StateRevoked, got.State)
}

func TestRevokeIsOneWayFromAnyState(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	d, _ := m.Grant(1, KindRead, "a")
	require.NoError(t, m.Return(d.ID))
	require.NoError(t, m.Revoke(d.ID))

	got, _ := m.Get(d.ID)
	assert.Equal(t, StateRevoked, got.State)
}

func TestGrantAfterRevokeOnSameInoSucceeds(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := NewManager(clk, time.Minute)

	d, _ := m.Grant(types.InodeId(1), KindWrite, "a")
	require.NoError(t, m.Revoke(d.ID))

	_, err := m.Grant(types.InodeId(1), KindWrite, "b")
	assert.NoError(t, err)
}
