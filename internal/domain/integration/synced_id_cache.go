package integration

import (
	"context"
	"sort"
	"time"
)

// DefaultSyncedIDCacheTTL is how long a cached id set stays valid
const DefaultSyncedIDCacheTTL = 30 * time.Second

// IDSet is a set of external id strings
type IDSet map[string]struct{}

// NewIDSet builds a set from ids
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has returns true if id is in the set
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the ids sorted
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// SyncedIDCache memoizes the set of external ids already imported locally.
//
// Get reports absent when nothing was set, after Invalidate, or once the
// entry is older than the TTL. Set and Invalidate replace the whole entry in
// one step so readers never see a partially updated set.
type SyncedIDCache interface {
	Get(ctx context.Context) (IDSet, bool, error)
	Set(ctx context.Context, ids IDSet) error
	Invalidate(ctx context.Context) error
}
