package raftapply

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.etcd.io/etcd/raft/v3/raftpb"
)

// raftPath is the HTTP path peers expect raft messages on; SetPeers
// entries that omit it get it appended.
const raftPath = "/raft"

// HTTPTransport sends raft messages to peers over HTTP and exposes a
// Handler that steps an inbound message into a Node.
type HTTPTransport struct {
	mu     sync.RWMutex
	peers  map[uint64]string // raft ID -> base URL (http://host:port)
	client *http.Client
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		peers:  make(map[uint64]string),
		client: &http.Client{Timeout: 500 * time.Millisecond},
	}
}

// SetPeers replaces the full peer address table.
func (t *HTTPTransport) SetPeers(peers map[uint64]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers = peers
}

// Send fires each message to its destination peer asynchronously, so a
// slow or unreachable peer never blocks the raft loop's own Ready cycle.
func (t *HTTPTransport) Send(msgs []raftpb.Message) {
	for _, msg := range msgs {
		go t.sendOne(msg)
	}
}

func (t *HTTPTransport) sendOne(msg raftpb.Message) {
	t.mu.RLock()
	url, ok := t.peers[msg.To]
	t.mu.RUnlock()
	if !ok {
		return
	}

	data, err := msg.Marshal()
	if err != nil {
		log.Printf("raftapply: marshal message to %d: %v", msg.To, err)
		return
	}

	fullURL := url
	if !strings.HasSuffix(fullURL, raftPath) {
		fullURL += raftPath
	}
	resp, err := t.client.Post(fullURL, "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return
	}
	resp.Body.Close()
}

// Handler returns an http.HandlerFunc that decodes a posted raft message
// and steps it into node.
func (t *HTTPTransport) Handler(node *Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var msg raftpb.Message
		if err := msg.Unmarshal(data); err != nil {
			http.Error(w, "invalid protobuf", http.StatusBadRequest)
			return
		}

		if err := node.Step(r.Context(), msg); err != nil {
			log.Printf("raftapply: step message from %d: %v", msg.From, err)
		}
	}
}
