package raftapply

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log"

	"go.etcd.io/etcd/raft/v3/raftpb"

	"github.com/myuser/rheakv/internal/kv"
)

// CommandKind tags which engine operation a committed Command carries.
type CommandKind int

const (
	CommandPut CommandKind = iota
	CommandGetAndPut
	CommandPutIfAbsent
	CommandMerge
	CommandDelete
	CommandPutBatch
	CommandDeleteRange
	CommandGetSequence
	CommandResetSequence
	CommandTryLock
	CommandReleaseLock
)

// Command is the gob-encoded tagged union proposed through the replicated
// log. Only mutating operations need to travel through consensus; pure
// reads (Get, Scan, ...) are served directly against the local Engine.
type Command struct {
	Kind CommandKind

	Key   []byte
	Value []byte
	End   []byte // DeleteRange upper bound
	Step  int    // GetSequence

	Entries []kv.KVEntry // PutBatch

	FencingKey []byte // TryLock
	KeepLease  bool
	Acquirer   kv.Acquirer
}

// EncodeCommand gob-encodes cmd for proposal.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("raftapply: encode command: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("raftapply: decode command: %w", err)
	}
	return cmd, nil
}

// EngineApplier dispatches committed log entries to an Engine's mutating
// operations and answers snapshot save/restore for the raft node's own
// snapshotting, rendering region/segment parameters through the engine's
// single-group sentinel (a per-node raft log covers its whole region).
type EngineApplier struct {
	Engine      *kv.Engine
	SnapshotDir string
}

func NewEngineApplier(engine *kv.Engine, snapshotDir string) *EngineApplier {
	return &EngineApplier{Engine: engine, SnapshotDir: snapshotDir}
}

// Apply decodes entry.Data as a Command and dispatches it to the Engine,
// discarding the result — the apply path runs for side effects; callers
// that need the response use a synchronous Completion off the main loop
// (not modeled here, since committed entries arrive asynchronously).
func (a *EngineApplier) Apply(entry raftpb.Entry) {
	cmd, err := decodeCommand(entry.Data)
	if err != nil {
		log.Printf("raftapply: dropping unreadable entry at index %d: %v", entry.Index, err)
		return
	}

	completion := kv.NewSyncCompletion()
	switch cmd.Kind {
	case CommandPut:
		a.Engine.Put(cmd.Key, cmd.Value, completion)
	case CommandGetAndPut:
		a.Engine.GetAndPut(cmd.Key, cmd.Value, completion)
	case CommandPutIfAbsent:
		a.Engine.PutIfAbsent(cmd.Key, cmd.Value, completion)
	case CommandMerge:
		a.Engine.Merge(cmd.Key, cmd.Value, completion)
	case CommandDelete:
		a.Engine.Delete(cmd.Key, completion)
	case CommandPutBatch:
		a.Engine.PutBatch(cmd.Entries, completion)
	case CommandDeleteRange:
		a.Engine.DeleteRange(cmd.Key, cmd.End, completion)
	case CommandGetSequence:
		a.Engine.GetSequence(cmd.Key, cmd.Step, completion)
	case CommandResetSequence:
		a.Engine.ResetSequence(cmd.Key, completion)
	case CommandTryLock:
		a.Engine.TryLock(cmd.Key, cmd.FencingKey, cmd.KeepLease, cmd.Acquirer, completion)
	case CommandReleaseLock:
		a.Engine.ReleaseLock(cmd.Key, cmd.Acquirer, completion)
	default:
		log.Printf("raftapply: unknown command kind %d at index %d", cmd.Kind, entry.Index)
		return
	}
	if _, err := completion.Wait(); err != nil {
		log.Printf("raftapply: command %d at index %d failed: %v", cmd.Kind, entry.Index, err)
	}
}

// GetSnapshot saves the whole engine (single-group region) into
// SnapshotDir via the engine's own section codec and returns that
// directory's path as the raft snapshot payload. The section files are
// not packed into the payload; they stay on the local filesystem.
func (a *EngineApplier) GetSnapshot() ([]byte, error) {
	dir := a.SnapshotDir
	if err := a.Engine.SaveSnapshot(kv.SingleGroup, dir, kv.DefaultSectionIO); err != nil {
		return nil, fmt.Errorf("raftapply: snapshot save: %w", err)
	}
	return []byte(dir), nil
}

// Restore loads a snapshot from the directory path carried in data, as
// produced by GetSnapshot; that directory must be readable locally.
func (a *EngineApplier) Restore(data []byte) error {
	dir := string(data)
	if err := a.Engine.LoadSnapshot(dir, kv.DefaultSectionIO); err != nil {
		return fmt.Errorf("raftapply: snapshot restore: %w", err)
	}
	return nil
}
