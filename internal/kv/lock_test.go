package kv

import (
	"bytes"
	"testing"
)

func newTestLockStore() *LockStore {
	return NewLockStore(NewFencingStore())
}

func TestTryLockScenarioS4(t *testing.T) {
	l := newTestLockStore()
	a := []byte("A")
	b := []byte("B")

	owner := l.tryLock([]byte("L"), []byte("F"), false, Acquirer{ID: a, LeaseMillis: 1000, NowMillis: 1000})
	if !owner.Success || owner.FencingToken != 1 || owner.Acquires != 1 {
		t.Fatalf("expected first-time success token=1 acquires=1, got %+v", owner)
	}

	owner = l.tryLock([]byte("L"), []byte("F"), false, Acquirer{ID: b, LeaseMillis: 1000, NowMillis: 1500})
	if owner.Success || !bytes.Equal(owner.ID, a) || owner.RemainingMillis != 500 {
		t.Fatalf("expected conflict with remaining=500 id=A, got %+v", owner)
	}

	owner = l.tryLock([]byte("L"), []byte("F"), false, Acquirer{ID: b, LeaseMillis: 1000, NowMillis: 2500})
	if !owner.Success || owner.FencingToken != 2 || owner.Acquires != 1 {
		t.Fatalf("expected new-acquire success after expiry, token=2 acquires=1, got %+v", owner)
	}
}

func TestTryLockReentrancyScenarioS5(t *testing.T) {
	l := newTestLockStore()
	a := []byte("A")

	owner := l.tryLock([]byte("L"), []byte("F"), false, Acquirer{ID: a, LeaseMillis: 1000, NowMillis: 0})
	if !owner.Success || owner.Acquires != 1 {
		t.Fatalf("expected first acquire, got %+v", owner)
	}

	owner = l.tryLock([]byte("L"), []byte("F"), false, Acquirer{ID: a, LeaseMillis: 1000, NowMillis: 100})
	if !owner.Success || owner.Acquires != 2 {
		t.Fatalf("expected reentrant acquire=2, got %+v", owner)
	}

	released := l.releaseLock([]byte("L"), Acquirer{ID: a})
	if !released.Success || released.Acquires != 1 {
		t.Fatalf("expected acquires=1 after first release, got %+v", released)
	}
	if _, present := l.owners["L"]; !present {
		t.Fatal("expected record to remain present at acquires=1")
	}

	released = l.releaseLock([]byte("L"), Acquirer{ID: a})
	if !released.Success || released.Acquires != 0 {
		t.Fatalf("expected acquires=0 after second release, got %+v", released)
	}
	if _, present := l.owners["L"]; present {
		t.Fatal("expected record to be removed at acquires<=0")
	}
}

func TestTryLockKeepLeaseOnAbsentFails(t *testing.T) {
	l := newTestLockStore()
	owner := l.tryLock([]byte("L"), []byte("F"), true, Acquirer{ID: []byte("A"), LeaseMillis: 1000, NowMillis: 0})
	if owner.Success || owner.RemainingMillis != KeepLeaseFail {
		t.Fatalf("expected KeepLeaseFail on absent+keepLease, got %+v", owner)
	}
}

func TestTryLockKeepLeaseSuccessForSameAcquirer(t *testing.T) {
	l := newTestLockStore()
	a := []byte("A")
	l.tryLock([]byte("L"), []byte("F"), false, Acquirer{ID: a, LeaseMillis: 1000, NowMillis: 0})
	owner := l.tryLock([]byte("L"), []byte("F"), true, Acquirer{ID: a, LeaseMillis: 1000, NowMillis: 100})
	if !owner.Success || owner.RemainingMillis != KeepLeaseSuccess || owner.Acquires != 1 {
		t.Fatalf("expected keep-lease success without reentrancy bump, got %+v", owner)
	}
}

func TestReleaseLockAbsentIsSyntheticSuccess(t *testing.T) {
	l := newTestLockStore()
	owner := l.releaseLock([]byte("L"), Acquirer{ID: []byte("A")})
	if !owner.Success || owner.Acquires != 0 {
		t.Fatalf("expected synthetic success with acquires=0, got %+v", owner)
	}
}

func TestReleaseLockWrongAcquirerFails(t *testing.T) {
	l := newTestLockStore()
	a, b := []byte("A"), []byte("B")
	l.tryLock([]byte("L"), []byte("F"), false, Acquirer{ID: a, LeaseMillis: 1000, NowMillis: 0})
	owner := l.releaseLock([]byte("L"), Acquirer{ID: b})
	if owner.Success || !bytes.Equal(owner.ID, a) {
		t.Fatalf("expected failure naming real owner A, got %+v", owner)
	}
	if _, present := l.owners["L"]; !present {
		t.Fatal("expected no mutation on failed release")
	}
}
