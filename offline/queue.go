// Package offline holds the durable operation queue written to while the
// backing store is unreachable and replayed, in enqueue order, when
// connectivity returns.
package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courtmix/session-engine/models"
)

var ErrOperationNotFound = errors.New("queued operation not found")

// Queue is a durable FIFO of pending operations. Every mutation is
// flushed to disk (write-temp-then-rename) so operations survive
// process restarts; replay is therefore at-least-once and the server
// side apply must stay idempotent.
type Queue struct {
	mu     sync.Mutex
	path   string
	ops    []*models.PendingOperation
	nextID int64
}

type queueFile struct {
	NextID int64                      `json:"next_id"`
	Ops    []*models.PendingOperation `json:"ops"`
}

// Open loads the queue file at path, creating an empty queue when the
// file does not exist yet.
func Open(path string) (*Queue, error) {
	q := &Queue{path: path, nextID: 1}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, fmt.Errorf("failed to read offline queue %s: %w", path, err)
	}
	var file queueFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse offline queue %s: %w", path, err)
	}
	q.ops = file.Ops
	q.nextID = file.NextID
	if q.nextID < 1 {
		q.nextID = 1
	}
	return q, nil
}

// Enqueue appends one operation and persists the queue.
func (q *Queue) Enqueue(kind models.OperationKind, sessionID uuid.UUID, payload interface{}) (*models.PendingOperation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	op := &models.PendingOperation{
		ID:        q.nextID,
		Kind:      kind,
		SessionID: sessionID,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	q.nextID++
	q.ops = append(q.ops, op)

	if err := q.persistLocked(); err != nil {
		// Roll the in-memory append back so state matches disk.
		q.ops = q.ops[:len(q.ops)-1]
		q.nextID--
		return nil, err
	}
	return op, nil
}

// Pending returns all queued operations in enqueue order.
func (q *Queue) Pending() []*models.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.PendingOperation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Len reports how many operations are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Ack removes a successfully replayed operation and persists the queue.
func (q *Queue) Ack(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, op := range q.ops {
		if op.ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return q.persistLocked()
		}
	}
	return ErrOperationNotFound
}

// RecordAttempt bumps the attempt counter for an operation.
func (q *Queue) RecordAttempt(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		if op.ID == id {
			op.Attempts++
			_ = q.persistLocked()
			return
		}
	}
}

func (q *Queue) persistLocked() error {
	data, err := json.MarshalIndent(queueFile{NextID: q.nextID, Ops: q.ops}, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal offline queue: %w", err)
	}
	tmp := q.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("failed to create offline queue directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write offline queue: %w", err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("failed to replace offline queue file: %w", err)
	}
	return nil
}
