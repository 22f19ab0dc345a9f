// Package ingest buffers externally sourced transactions for the monitor
// agent to drain on its next cycle.
package ingest

import (
	"sync"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// Buffer is a bounded FIFO holding transactions between agent cycles.
// When full, the oldest entries are dropped first.
type Buffer struct {
	mu       sync.Mutex
	entries  []*models.Transaction
	capacity int
	dropped  uint64
}

// NewBuffer creates a buffer holding at most capacity transactions.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Buffer{capacity: capacity}
}

// Push appends a transaction, evicting the oldest entry when full.
func (b *Buffer) Push(tx *models.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		b.entries = b.entries[1:]
		b.dropped++
	}
	b.entries = append(b.entries, tx)
}

// Drain removes and returns up to max transactions in arrival order.
func (b *Buffer) Drain(max int) []*models.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	if max <= 0 || max > len(b.entries) {
		max = len(b.entries)
	}
	if max == 0 {
		return nil
	}
	batch := make([]*models.Transaction, max)
	copy(batch, b.entries[:max])
	b.entries = b.entries[max:]
	return batch
}

// Len returns the number of buffered transactions.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Dropped returns the number of transactions evicted due to overflow.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
