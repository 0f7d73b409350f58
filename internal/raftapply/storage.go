package raftapply

import (
	"encoding/json"
	"fmt"

	"github.com/myuser/rheakv/internal/raftapply/wal"
	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

// recordKind tags what a WAL record's Data holds. Entry records carry
// raftpb.Entry payloads whose own Data field is an EngineApplier Command
// (see apply.go) — opaque to this layer, which only needs to replay them
// back into memory on restart.
type recordKind int

const (
	recordEntry recordKind = iota
	recordHardState
	recordSnapshot
)

// record is the on-disk framing written to the WAL for every raft state
// change: entries, hard state updates, and snapshots all go through the
// same append-only log, distinguished by kind.
type record struct {
	Kind recordKind
	Data []byte
}

// DiskStorage adapts raft.MemoryStorage to durable storage: every Save,
// CreateSnapshot, and ApplySnapshot call is mirrored to a WAL before
// (or alongside) updating the in-memory view, and the WAL is replayed on
// open to rebuild that view after a restart.
type DiskStorage struct {
	*raft.MemoryStorage
	wal *wal.WAL
}

// NewDiskStorage opens (or creates) the WAL at walPath and replays it into
// a fresh MemoryStorage.
func NewDiskStorage(walPath string) (*DiskStorage, error) {
	w, err := wal.Open(walPath)
	if err != nil {
		return nil, err
	}

	mem := raft.NewMemoryStorage()
	ds := &DiskStorage{MemoryStorage: mem, wal: w}

	if err := w.Iterate(func(data []byte) error {
		return ds.replay(mem, data)
	}); err != nil {
		return nil, err
	}

	return ds, nil
}

func (ds *DiskStorage) replay(mem *raft.MemoryStorage, data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	switch r.Kind {
	case recordEntry:
		var ent raftpb.Entry
		if err := ent.Unmarshal(r.Data); err != nil {
			return err
		}
		mem.Append([]raftpb.Entry{ent})
	case recordHardState:
		var hs raftpb.HardState
		if err := hs.Unmarshal(r.Data); err != nil {
			return err
		}
		mem.SetHardState(hs)
	case recordSnapshot:
		var snap raftpb.Snapshot
		if err := snap.Unmarshal(r.Data); err != nil {
			return err
		}
		mem.ApplySnapshot(snap)
	default:
		return fmt.Errorf("raftapply: unknown WAL record kind %d", r.Kind)
	}
	return nil
}

// Save persists entries and state to the WAL before mirroring them into
// the in-memory view raft reads back from.
func (ds *DiskStorage) Save(entries []raftpb.Entry, state raftpb.HardState) error {
	for _, ent := range entries {
		b, err := ent.Marshal()
		if err != nil {
			return err
		}
		if err := ds.writeRecord(recordEntry, b); err != nil {
			return err
		}
	}

	if !raft.IsEmptyHardState(state) {
		b, err := state.Marshal()
		if err != nil {
			return err
		}
		if err := ds.writeRecord(recordHardState, b); err != nil {
			return err
		}
	}

	ds.MemoryStorage.Append(entries)
	if !raft.IsEmptyHardState(state) {
		ds.MemoryStorage.SetHardState(state)
	}

	return nil
}

func (ds *DiskStorage) writeRecord(kind recordKind, data []byte) error {
	b, err := json.Marshal(record{Kind: kind, Data: data})
	if err != nil {
		return err
	}
	return ds.wal.Append(b)
}

func (ds *DiskStorage) Close() error {
	return ds.wal.Close()
}

// CreateSnapshot renders a raft snapshot whose Data is the engine's own
// snapshot payload (EngineApplier.GetSnapshot), persists it, and compacts
// the log up to i.
func (ds *DiskStorage) CreateSnapshot(i uint64, cs *raftpb.ConfState, data []byte) (raftpb.Snapshot, error) {
	snap, err := ds.MemoryStorage.CreateSnapshot(i, cs, data)
	if err != nil {
		return raftpb.Snapshot{}, err
	}

	b, err := snap.Marshal()
	if err != nil {
		return raftpb.Snapshot{}, err
	}
	if err := ds.writeRecord(recordSnapshot, b); err != nil {
		return raftpb.Snapshot{}, err
	}

	if err := ds.MemoryStorage.Compact(i); err != nil {
		return raftpb.Snapshot{}, err
	}
	return snap, nil
}

// ApplySnapshot installs an inbound snapshot (whose Data an EngineApplier
// restores separately) and records it durably.
func (ds *DiskStorage) ApplySnapshot(snap raftpb.Snapshot) error {
	if err := ds.MemoryStorage.ApplySnapshot(snap); err != nil {
		return err
	}
	b, err := snap.Marshal()
	if err != nil {
		return err
	}
	return ds.writeRecord(recordSnapshot, b)
}
