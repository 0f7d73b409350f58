package kv

import (
	"log"
	"sync"
)

// Sentinel remainingMillis codes returned in an Owner response. These are
// part of the external contract and must stay stable for wire
// compatibility; the numeric value is authoritative, any symbolic name is
// just a convenience for callers.
const (
	KeepLeaseFail     int64 = -1
	KeepLeaseSuccess  int64 = -2
	FirstTimeSuccess  int64 = -3
	NewAcquireSuccess int64 = -4
	ReentrantSuccess  int64 = -5
)

// Owner is the in-store record describing the current holder of a lock,
// and the response shape for every lock operation. It is an immutable
// value type: callers build one via struct literal rather than a builder.
type Owner struct {
	ID              []byte
	DeadlineMillis  int64
	RemainingMillis int64
	FencingToken    int64
	Acquires        int32
	Context         []byte
	Success         bool
}

// Acquirer is the caller identity attempting a lock operation. Equality
// between two acquirers is by ID bytes alone.
type Acquirer struct {
	ID         []byte
	LeaseMillis int64
	NowMillis  int64
	Context    []byte
}

func sameAcquirer(id []byte, a Acquirer) bool {
	return string(id) == string(a.ID)
}

// LockStore holds one Owner record per key and implements the
// distributed-lock protocol: try-lock with reentrancy and lease expiry,
// and release-lock, each a critical section on the key.
type LockStore struct {
	mu      sync.Mutex
	owners  map[string]Owner
	fencing *FencingStore
}

// NewLockStore returns an empty lock store backed by fencing for
// fencing-token issuance on new/replaced owners.
func NewLockStore(fencing *FencingStore) *LockStore {
	return &LockStore{owners: make(map[string]Owner), fencing: fencing}
}

// tryLock computes and, where applicable, stores the new Owner for key
// given the current state and the incoming acquirer, per the decision
// table: absent/expired/live-same/live-different crossed with keepLease.
func (l *LockStore) tryLock(key, fencingKey []byte, keepLease bool, acquirer Acquirer) Owner {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := acquirer.NowMillis
	k := string(key)
	prev, hasPrev := l.owners[k]

	if !hasPrev {
		if keepLease {
			return Owner{
				ID:              acquirer.ID,
				RemainingMillis: KeepLeaseFail,
				Success:         false,
			}
		}
		owner := Owner{
			ID:              acquirer.ID,
			DeadlineMillis:  now + acquirer.LeaseMillis,
			RemainingMillis: FirstTimeSuccess,
			FencingToken:    l.fencing.nextFencingToken(fencingKey),
			Acquires:        1,
			Context:         acquirer.Context,
			Success:         true,
		}
		l.owners[k] = owner
		return owner
	}

	remaining := prev.DeadlineMillis - now
	if remaining < 0 {
		if keepLease {
			return Owner{
				ID:              prev.ID,
				DeadlineMillis:  prev.DeadlineMillis,
				RemainingMillis: KeepLeaseFail,
				Context:         prev.Context,
				Success:         false,
			}
		}
		owner := Owner{
			ID:              acquirer.ID,
			DeadlineMillis:  now + acquirer.LeaseMillis,
			RemainingMillis: NewAcquireSuccess,
			FencingToken:    l.fencing.nextFencingToken(fencingKey),
			Acquires:        1,
			Context:         acquirer.Context,
			Success:         true,
		}
		l.owners[k] = owner
		return owner
	}

	if sameAcquirer(prev.ID, acquirer) {
		if keepLease {
			owner := Owner{
				ID:              prev.ID,
				DeadlineMillis:  now + acquirer.LeaseMillis,
				RemainingMillis: KeepLeaseSuccess,
				FencingToken:    prev.FencingToken,
				Acquires:        prev.Acquires,
				Context:         prev.Context,
				Success:         true,
			}
			l.owners[k] = owner
			return owner
		}
		owner := Owner{
			ID:              prev.ID,
			DeadlineMillis:  now + acquirer.LeaseMillis,
			RemainingMillis: ReentrantSuccess,
			FencingToken:    prev.FencingToken,
			Acquires:        prev.Acquires + 1,
			Context:         acquirer.Context,
			Success:         true,
		}
		l.owners[k] = owner
		return owner
	}

	log.Printf("Another locker [%x] is trying the existed lock [%x].", acquirer.ID, key)
	return Owner{
		ID:              prev.ID,
		RemainingMillis: remaining,
		Context:         prev.Context,
		Success:         false,
	}
}

// releaseLock decrements the reentrancy count for the acquirer's
// ownership of key; removes the record once it reaches zero. A missing
// record is tolerated (the caller may be retrying after a successful
// release) and reported as a synthetic success with Acquires == 0.
func (l *LockStore) releaseLock(key []byte, acquirer Acquirer) Owner {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := string(key)
	prev, hasPrev := l.owners[k]

	if !hasPrev {
		log.Printf("Lock not exist: %x.", acquirer.ID)
		return Owner{
			ID:           acquirer.ID,
			FencingToken: 0,
			Acquires:     0,
			Success:      true,
		}
	}

	if sameAcquirer(prev.ID, acquirer) {
		acquires := prev.Acquires - 1
		owner := Owner{
			ID:             prev.ID,
			DeadlineMillis: prev.DeadlineMillis,
			FencingToken:   prev.FencingToken,
			Acquires:       acquires,
			Context:        prev.Context,
			Success:        true,
		}
		if acquires <= 0 {
			delete(l.owners, k)
		} else {
			l.owners[k] = owner
		}
		return owner
	}

	log.Printf("The lock owner is: [%x], [%x] couldn't release it.", prev.ID, acquirer.ID)
	return Owner{
		ID:           prev.ID,
		FencingToken: prev.FencingToken,
		Acquires:     prev.Acquires,
		Context:      prev.Context,
		Success:      false,
	}
}

// subMap returns the lock store filtered to region, or the full map when
// region is the single-group sentinel.
func (l *LockStore) subMap(region Region) map[string]Owner {
	l.mu.Lock()
	defer l.mu.Unlock()
	return filterByteMap(l.owners, region)
}

// putAll merges entries into the live store, overwriting existing keys.
func (l *LockStore) putAll(entries map[string]Owner) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range entries {
		l.owners[k] = v
	}
}
