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

// Package idmap translates between host and FUSE-local uid/gid spaces
// (spec.md §4.12): Identity, Squash, RangeShift, and Table modes. Pure
// bit/map arithmetic, stdlib only.
package idmap

import (
	"fmt"

	"github.com/dreamware/distfs/internal/distfserrors"
)

// Mode selects the mapping strategy.
type Mode int

const (
	ModeIdentity Mode = iota
	ModeSquash
	ModeRangeShift
	ModeTable
)

// MaxTableEntries bounds the Table mode maps.
const MaxTableEntries = 65535

// Config carries the parameters Squash and RangeShift need; unused
// fields are ignored in other modes.
type Config struct {
	Mode       Mode
	NobodyUID  uint32
	NobodyGID  uint32
	HostBase   uint32
	LocalBase  uint32
	Count      uint32
}

// Mapper maps host uid/gid to their local namespace equivalents.
type Mapper struct {
	cfg      Config
	uidTable map[uint32]uint32
	gidTable map[uint32]uint32
}

// New constructs a Mapper in cfg.Mode.
func New(cfg Config) *Mapper {
	return &Mapper{
		cfg:      cfg,
		uidTable: make(map[uint32]uint32),
		gidTable: make(map[uint32]uint32),
	}
}

// AddUIDEntry registers a host->local UID mapping. Only valid in Table
// mode.
func (m *Mapper) AddUIDEntry(hostID, localID uint32) error {
	return addEntry(m.cfg.Mode, m.uidTable, hostID, localID, "UID")
}

// AddGIDEntry registers a host->local GID mapping. Only valid in Table
// mode.
func (m *Mapper) AddGIDEntry(hostID, localID uint32) error {
	return addEntry(m.cfg.Mode, m.gidTable, hostID, localID, "GID")
}

func addEntry(mode Mode, table map[uint32]uint32, hostID, localID uint32, what string) error {
	if mode != ModeTable {
		return distfserrors.NewInvalidArgument(fmt.Sprintf("add_%s_entry only supported in Table mode", what))
	}
	if len(table) >= MaxTableEntries {
		return distfserrors.NewInvalidArgument(fmt.Sprintf("max %s entries exceeded (%d)", what, MaxTableEntries))
	}
	if _, exists := table[hostID]; exists {
		return distfserrors.NewAlreadyExists(fmt.Sprintf("duplicate host_id %d in %s table", hostID, what))
	}
	table[hostID] = localID
	return nil
}

// MapUID translates a host UID to its local equivalent.
func (m *Mapper) MapUID(hostUID uint32) uint32 {
	return m.mapID(hostUID, m.cfg.NobodyUID, m.uidTable)
}

// MapGID translates a host GID to its local equivalent.
func (m *Mapper) MapGID(hostGID uint32) uint32 {
	return m.mapID(hostGID, m.cfg.NobodyGID, m.gidTable)
}

func (m *Mapper) mapID(hostID, nobody uint32, table map[uint32]uint32) uint32 {
	if hostID == 0 && m.cfg.Mode != ModeSquash {
		return 0
	}
	switch m.cfg.Mode {
	case ModeIdentity:
		return hostID
	case ModeSquash:
		return nobody
	case ModeRangeShift:
		if hostID >= m.cfg.HostBase && hostID < m.cfg.HostBase+m.cfg.Count {
			return m.cfg.LocalBase + (hostID - m.cfg.HostBase)
		}
		return hostID
	case ModeTable:
		if local, ok := table[hostID]; ok {
			return local
		}
		return hostID
	default:
		return hostID
	}
}

// ReverseMapUID looks up the host UID for a local UID. Defined only in
// Table mode.
func (m *Mapper) ReverseMapUID(localUID uint32) (uint32, bool) {
	return reverseLookup(m.cfg.Mode, m.uidTable, localUID)
}

// ReverseMapGID looks up the host GID for a local GID. Defined only in
// Table mode.
func (m *Mapper) ReverseMapGID(localGID uint32) (uint32, bool) {
	return reverseLookup(m.cfg.Mode, m.gidTable, localGID)
}

func reverseLookup(mode Mode, table map[uint32]uint32, local uint32) (uint32, bool) {
	if mode != ModeTable {
		return 0, false
	}
	for host, l := range table {
		if l == local {
			return host, true
		}
	}
	return 0, false
}

// UIDEntryCount reports how many Table-mode UID mappings are registered.
func (m *Mapper) UIDEntryCount() int { return len(m.uidTable) }

// GIDEntryCount reports how many Table-mode GID mappings are registered.
func (m *Mapper) GIDEntryCount() int { return len(m.gidTable) }
