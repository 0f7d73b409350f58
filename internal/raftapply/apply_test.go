package raftapply

import (
	"bytes"
	"testing"

	"go.etcd.io/etcd/raft/v3/raftpb"

	"github.com/myuser/rheakv/internal/kv"
)

func TestEngineApplierDispatchesPut(t *testing.T) {
	engine := kv.NewEngine(100)
	applier := NewEngineApplier(engine, t.TempDir())

	data, err := EncodeCommand(Command{Kind: CommandPut, Key: []byte("k"), Value: []byte("v")})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	applier.Apply(raftpb.Entry{Data: data})

	sc := kv.NewSyncCompletion()
	engine.Get([]byte("k"), sc)
	got, err := sc.Wait()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got.([]byte), []byte("v")) {
		t.Fatalf("expected v, got %q", got)
	}
}

func TestEngineApplierSnapshotRoundTrip(t *testing.T) {
	engine := kv.NewEngine(100)
	applier := NewEngineApplier(engine, t.TempDir())

	data, _ := EncodeCommand(Command{Kind: CommandPut, Key: []byte("a"), Value: []byte("1")})
	applier.Apply(raftpb.Entry{Data: data})

	snap, err := applier.GetSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	dst := kv.NewEngine(100)
	dstApplier := NewEngineApplier(dst, t.TempDir())
	if err := dstApplier.Restore(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	sc := kv.NewSyncCompletion()
	dst.Get([]byte("a"), sc)
	got, err := sc.Wait()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got.([]byte), []byte("1")) {
		t.Fatalf("expected 1, got %q", got)
	}
}

func TestEngineApplierDropsUnreadableEntry(t *testing.T) {
	engine := kv.NewEngine(100)
	applier := NewEngineApplier(engine, t.TempDir())
	applier.Apply(raftpb.Entry{Data: []byte("not a gob command")})
}
