// services/lease.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLeaseNotAcquired is returned when the context ends before the lease frees up
	ErrLeaseNotAcquired = errors.New("lease not acquired")
	// ErrLeaseLost is returned by Release when the lease expired and someone else holds it now
	ErrLeaseLost = errors.New("lease no longer held")
)

// Lease is exclusive ownership of one key until Release is called
type Lease interface {
	Release(ctx context.Context) error
}

// LeaseManager hands out per-key leases. Acquire blocks until the key is free or ctx ends.
type LeaseManager interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// MemoryLeaseManager serializes keys inside one process. Only suitable for a single instance.
type MemoryLeaseManager struct {
	mu    sync.Mutex
	slots map[string]*leaseSlot
}

type leaseSlot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLeaseManager() *MemoryLeaseManager {
	return &MemoryLeaseManager{slots: make(map[string]*leaseSlot)}
}

func (m *MemoryLeaseManager) Acquire(ctx context.Context, key string) (Lease, error) {
	m.mu.Lock()
	slot, ok := m.slots[key]
	if !ok {
		slot = &leaseSlot{ch: make(chan struct{}, 1)}
		m.slots[key] = slot
	}
	slot.refs++
	m.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return &memoryLease{manager: m, key: key, slot: slot}, nil
	case <-ctx.Done():
		m.unref(key, slot)
		return nil, fmt.Errorf("%w: %s: %v", ErrLeaseNotAcquired, key, ctx.Err())
	}
}

func (m *MemoryLeaseManager) unref(key string, slot *leaseSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(m.slots, key)
	}
}

// held reports how many keys currently have a holder or waiter
func (m *MemoryLeaseManager) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

type memoryLease struct {
	manager *MemoryLeaseManager
	key     string
	slot    *leaseSlot
	once    sync.Once
}

func (l *memoryLease) Release(context.Context) error {
	released := false
	l.once.Do(func() {
		<-l.slot.ch
		l.manager.unref(l.key, l.slot)
		released = true
	})
	if !released {
		return ErrLeaseLost
	}
	return nil
}
