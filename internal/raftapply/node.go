package raftapply

import (
	"context"
	"log"
	"time"

	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

// snapshotEvery bounds how many committed entries accumulate before Node
// asks its Applier for a fresh engine snapshot and compacts the log.
const snapshotEvery = 50

// Node drives a single etcd/raft.Node against an Applier — the engine's
// entry point for committed log data — persisting through a Storage and
// exchanging messages through a Transport.
type Node struct {
	ID        uint64
	RaftNode  raft.Node
	Storage   Storage
	Transport Transport
	Applier   Applier

	voters []uint64
}

// Storage is the subset of raft persistence both DiskStorage and the
// in-memory fallback satisfy.
type Storage interface {
	raft.Storage
	Save(entries []raftpb.Entry, state raftpb.HardState) error
	CreateSnapshot(i uint64, cs *raftpb.ConfState, data []byte) (raftpb.Snapshot, error)
	ApplySnapshot(snap raftpb.Snapshot) error
	Close() error
}

// Applier is the engine's entry point for the replicated log: committed
// entries are decoded and dispatched against it, and it renders/restores
// its own state for raft snapshots.
type Applier interface {
	Apply(entry raftpb.Entry)
	GetSnapshot() ([]byte, error)
	Restore(data []byte) error
}

type Transport interface {
	Send(msgs []raftpb.Message)
}

// Config describes one raft participant.
type Config struct {
	ID      uint64
	Peers   []uint64
	WALPath string // empty uses an in-memory Storage, for tests
}

// NewNode starts or restarts a raft participant backed by a WAL-persisted
// Storage (or an in-memory one when cfg.WALPath is empty), wired to apply
// committed entries against applier.
func NewNode(cfg Config, applier Applier, transport Transport) (*Node, error) {
	var storage Storage
	if cfg.WALPath != "" {
		ds, err := NewDiskStorage(cfg.WALPath)
		if err != nil {
			return nil, err
		}
		storage = ds
	} else {
		storage = &memoryStorageWrapper{raft.NewMemoryStorage()}
	}

	c := &raft.Config{
		ID:              cfg.ID,
		ElectionTick:    10,
		HeartbeatTick:   1,
		Storage:         storage,
		MaxSizePerMsg:   4096,
		MaxInflightMsgs: 256,
	}

	var peers []raft.Peer
	for _, p := range cfg.Peers {
		peers = append(peers, raft.Peer{ID: p})
	}

	if _, err := storage.FirstIndex(); err != nil {
		return nil, err
	}
	lastIndex, err := storage.LastIndex()
	if err != nil {
		return nil, err
	}

	var rn raft.Node
	if lastIndex > 0 {
		rn = raft.RestartNode(c)
	} else {
		rn = raft.StartNode(c, peers)
	}

	return &Node{
		ID:        cfg.ID,
		RaftNode:  rn,
		Storage:   storage,
		Transport: transport,
		Applier:   applier,
		voters:    cfg.Peers,
	}, nil
}

// memoryStorageWrapper adapts raft.MemoryStorage to Storage for tests and
// single-process demonstrations that don't need a WAL.
type memoryStorageWrapper struct {
	*raft.MemoryStorage
}

func (m *memoryStorageWrapper) Save(entries []raftpb.Entry, state raftpb.HardState) error {
	m.Append(entries)
	if !raft.IsEmptyHardState(state) {
		m.SetHardState(state)
	}
	return nil
}
func (m *memoryStorageWrapper) Close() error { return nil }

// CreateSnapshot/ApplySnapshot are inherited from raft.MemoryStorage.

// Run is the node's blocking main loop: tick the raft state machine,
// persist and transmit each Ready, and dispatch committed entries to the
// engine through Applier. Returns once ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.RaftNode.Stop()
			return
		case <-ticker.C:
			n.RaftNode.Tick()
		case rd := <-n.RaftNode.Ready():
			if err := n.Storage.Save(rd.Entries, rd.HardState); err != nil {
				log.Fatalf("raftapply: persist raft state: %v", err)
			}

			n.Transport.Send(rd.Messages)

			for _, entry := range rd.CommittedEntries {
				if entry.Type == raftpb.EntryNormal && len(entry.Data) > 0 {
					n.Applier.Apply(entry)
				}
			}

			n.maybeSnapshot(rd.CommittedEntries)

			if !raft.IsEmptySnap(rd.Snapshot) {
				log.Printf("raftapply: applying inbound snapshot at index %d", rd.Snapshot.Metadata.Index)
				if err := n.Storage.ApplySnapshot(rd.Snapshot); err != nil {
					log.Printf("raftapply: apply snapshot failed: %v", err)
				}
				if err := n.Applier.Restore(rd.Snapshot.Data); err != nil {
					log.Printf("raftapply: restore engine state failed: %v", err)
				}
			}

			n.RaftNode.Advance()
		}
	}
}

// maybeSnapshot asks the engine for a fresh snapshot and compacts the log
// once more than snapshotEvery entries have accumulated since the last
// compaction.
func (n *Node) maybeSnapshot(committed []raftpb.Entry) {
	if len(committed) == 0 {
		return
	}
	lastApplied := committed[len(committed)-1].Index
	firstIndex, err := n.Storage.FirstIndex()
	if err != nil || lastApplied <= firstIndex || lastApplied-firstIndex <= snapshotEvery {
		return
	}

	data, err := n.Applier.GetSnapshot()
	if err != nil {
		return
	}
	cs := &raftpb.ConfState{Voters: n.voters}
	if _, err := n.Storage.CreateSnapshot(lastApplied, cs, data); err != nil {
		log.Printf("raftapply: create snapshot at %d failed: %v", lastApplied, err)
		return
	}
	log.Printf("raftapply: engine snapshot created at index %d", lastApplied)
}

func (n *Node) Propose(ctx context.Context, data []byte) error {
	return n.RaftNode.Propose(ctx, data)
}

func (n *Node) Step(ctx context.Context, msg raftpb.Message) error {
	return n.RaftNode.Step(ctx, msg)
}
