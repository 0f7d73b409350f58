package kv

import (
	"bytes"
	"fmt"
	"testing"
)

func drainSync(fn func(c Completion)) (any, error) {
	sc := NewSyncCompletion()
	fn(sc)
	return sc.Wait()
}

func TestEngineGetPutRoundTrip(t *testing.T) {
	e := NewEngine(1000)
	if _, err := drainSync(func(c Completion) { e.Put([]byte("k"), []byte("v"), c) }); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, err := drainSync(func(c Completion) { e.Get([]byte("k"), c) })
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got.([]byte), []byte("v")) {
		t.Fatalf("expected v, got %q", got)
	}
}

func TestEngineSnapshotRoundTripScenarioS6(t *testing.T) {
	e := NewEngine(1000)
	for i := 0; i < 2500; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		e.store.put(key, key)
	}

	dir := t.TempDir()
	region := Region{Start: []byte("k0500"), End: []byte("k2000")}
	if err := e.SaveSnapshot(region, dir, DefaultSectionIO); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var tail int
	if err := DefaultSectionIO.ReadSection(dir, sectionTailIndex, &tail); err != nil {
		t.Fatalf("read tailIndex failed: %v", err)
	}
	if tail != 1 {
		t.Fatalf("expected tailIndex=1 (segments 0 and 1), got %d", tail)
	}

	dst := NewEngine(1000)
	if err := dst.LoadSnapshot(dir, DefaultSectionIO); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	entries := dst.store.scan(nil, nil, 0, false)
	if len(entries) != 1500 {
		t.Fatalf("expected exactly 1500 keys in [k0500,k2000), got %d", len(entries))
	}
	if string(entries[0].Key) != "k0500" {
		t.Fatalf("expected first key k0500, got %q", entries[0].Key)
	}
	if string(entries[len(entries)-1].Key) != "k1999" {
		t.Fatalf("expected last key k1999, got %q", entries[len(entries)-1].Key)
	}
}

func TestEngineSnapshotRoundTripAllFourStores(t *testing.T) {
	e := NewEngine(10)
	e.store.put([]byte("a"), []byte("1"))
	e.sequence.getSequence([]byte("seq"), 5)
	e.fencing.nextFencingToken([]byte("fk"))
	e.lock.tryLock([]byte("L"), []byte("F"), false, Acquirer{ID: []byte("A"), LeaseMillis: 1000, NowMillis: 0})

	dir := t.TempDir()
	if err := e.SaveSnapshot(SingleGroup, dir, DefaultSectionIO); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	dst := NewEngine(10)
	if err := dst.LoadSnapshot(dir, DefaultSectionIO); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := dst.store.get([]byte("a")); !bytes.Equal(got, []byte("1")) {
		t.Fatalf("expected primary store entry to survive round trip, got %q", got)
	}
	seq, err := dst.sequence.getSequence([]byte("seq"), 0)
	if err != nil || seq.End != 5 {
		t.Fatalf("expected sequence end=5 after round trip, got %+v err=%v", seq, err)
	}
	if dst.fencing.data["fk"] != 1 {
		t.Fatalf("expected fencing counter 1 after round trip, got %d", dst.fencing.data["fk"])
	}
	owner, ok := dst.lock.owners["L"]
	if !ok || !bytes.Equal(owner.ID, []byte("A")) {
		t.Fatalf("expected lock owner A to survive round trip, got %+v ok=%v", owner, ok)
	}
}

func TestEngineApproximateKeysInRangeAndJumpOver(t *testing.T) {
	e := NewEngine(10)
	for _, k := range []string{"a", "b", "c", "d"} {
		e.store.put([]byte(k), []byte(k))
	}
	if got := e.ApproximateKeysInRange([]byte("a"), nil); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	if got := e.JumpOver([]byte("a"), 3); string(got) != "c" {
		t.Fatalf("expected jump to land on c, got %q", got)
	}
}

func TestEngineInitFencingTokenDirect(t *testing.T) {
	e := NewEngine(10)
	e.fencing.nextFencingToken([]byte("parent"))
	e.InitFencingToken([]byte("parent"), []byte("child"))
	if got := e.fencing.nextFencingToken([]byte("child")); got != 2 {
		t.Fatalf("expected child to continue at 2, got %d", got)
	}
}
