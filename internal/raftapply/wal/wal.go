// Package wal is a minimal length-prefixed, checksummed append-only log
// used to persist DiskStorage's raft records to disk.
package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// ErrCorruptRecord is returned by Iterate when a record's trailing CRC
// doesn't match its data.
var ErrCorruptRecord = errors.New("wal: corrupt record")

// WAL is a single append-only file of length-prefixed, CRC32-checksummed
// records: Len(4) | Data(N) | CRC(4), big-endian.
type WAL struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open opens or creates the WAL file at path, positioned for appending.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &WAL{f: f, path: path}, nil
}

// Append writes one record to the end of the log and fsyncs before
// returning, so a caller that returns success has a durable record.
func (w *WAL) Append(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := w.f.Write(lenBuf); err != nil {
		return err
	}
	if _, err := w.f.Write(data); err != nil {
		return err
	}

	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc32.ChecksumIEEE(data))
	if _, err := w.f.Write(crcBuf); err != nil {
		return err
	}

	return w.f.Sync()
}

// Iterate replays every record from the start of the log, calling
// handler for each in write order. Leaves the file positioned for
// appending afterward.
func (w *WAL) Iterate(handler func(data []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(w.f, lenBuf); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		length := binary.BigEndian.Uint32(lenBuf)

		data := make([]byte, length)
		if _, err := io.ReadFull(w.f, data); err != nil {
			return err
		}

		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(w.f, crcBuf); err != nil {
			return err
		}
		if binary.BigEndian.Uint32(crcBuf) != crc32.ChecksumIEEE(data) {
			return ErrCorruptRecord
		}

		if err := handler(data); err != nil {
			return err
		}
	}

	_, err := w.f.Seek(0, io.SeekEnd)
	return err
}

func (w *WAL) Close() error {
	return w.f.Close()
}
