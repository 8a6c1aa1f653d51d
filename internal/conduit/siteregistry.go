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

package conduit

import (
	"bytes"
	"strconv"
	"sync"
	"time"

	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/types"
)

// SiteRecord tracks one known peer site for the replication conduit.
type SiteRecord struct {
	SiteID         types.SiteId
	DisplayName    string
	TLSFingerprint []byte // nil means no fingerprint pinned
	Addresses      []string
	AddedAt        time.Time
	LastSeen       time.Time
}

// NewSiteRecord constructs a SiteRecord stamped with now for both
// AddedAt and LastSeen.
func NewSiteRecord(id types.SiteId, displayName string, now time.Time) SiteRecord {
	return SiteRecord{SiteID: id, DisplayName: displayName, AddedAt: now, LastSeen: now}
}

// SiteRegistry tracks known peer sites, enabling validation that a
// received batch's source_site_id matches the authenticated TLS
// identity.
type SiteRegistry struct {
	mu    sync.RWMutex
	sites map[types.SiteId]SiteRecord
}

// NewSiteRegistry constructs an empty SiteRegistry.
func NewSiteRegistry() *SiteRegistry {
	return &SiteRegistry{sites: make(map[types.SiteId]SiteRecord)}
}

// Register adds a new site. Fails AlreadyExists if the site_id is
// already registered.
func (r *SiteRegistry) Register(rec SiteRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sites[rec.SiteID]; ok {
		return distfserrors.NewAlreadyExists("site already registered")
	}
	r.sites[rec.SiteID] = rec
	return nil
}

// Unregister removes a site by id, returning its last record.
func (r *SiteRegistry) Unregister(id types.SiteId) (SiteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sites[id]
	if !ok {
		return SiteRecord{}, distfserrors.NewNotFound(distfserrors.NotFoundSite, siteIDString(id))
	}
	delete(r.sites, id)
	return rec, nil
}

// Lookup returns a site's record.
func (r *SiteRegistry) Lookup(id types.SiteId) (SiteRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sites[id]
	return rec, ok
}

// VerifySourceID checks that id is known and, if both the registry and
// the caller supply a TLS fingerprint, that they match.
func (r *SiteRegistry) VerifySourceID(id types.SiteId, tlsFingerprint []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sites[id]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundSite, siteIDString(id))
	}
	if rec.TLSFingerprint != nil && tlsFingerprint != nil && !bytes.Equal(rec.TLSFingerprint, tlsFingerprint) {
		return distfserrors.NewIntegrity(distfserrors.IntegrityFingerprintMismatch)
	}
	return nil
}

// UpdateLastSeen records liveness for a site.
func (r *SiteRegistry) UpdateLastSeen(id types.SiteId, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sites[id]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundSite, siteIDString(id))
	}
	rec.LastSeen = at
	r.sites[id] = rec
	return nil
}

// Len reports the number of registered sites.
func (r *SiteRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sites)
}

// Sites returns a snapshot of all registered records.
func (r *SiteRegistry) Sites() []SiteRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SiteRecord, 0, len(r.sites))
	for _, rec := range r.sites {
		out = append(out, rec)
	}
	return out
}

func siteIDString(id types.SiteId) string {
	return "site:" + strconv.FormatUint(uint64(id), 10)
}
