package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

type memoryResource struct {
	capacity  uint64
	sold      uint64
	cancelled bool
	balances  map[string]uint64
}

// Memory is an in-process ledger used when no chain endpoint is configured.
// Every transaction is confirmed after the configured delay.
type Memory struct {
	mu        sync.Mutex
	owner     string
	delay     time.Duration
	resources map[common.Hash]*memoryResource
	rejected  map[string]bool
	out       chan Confirmation
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemory(owner string, delay time.Duration) *Memory {
	return &Memory{
		owner:     owner,
		delay:     delay,
		resources: make(map[common.Hash]*memoryResource),
		rejected:  make(map[string]bool),
		out:       make(chan Confirmation, 256),
		done:      make(chan struct{}),
	}
}

func (m *Memory) Confirmations() <-chan Confirmation {
	return m.out
}

// RejectNext makes the next transaction of the given operation revert, its
// state change is not applied.
func (m *Memory) RejectNext(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[op] = true
}

func (m *Memory) CreateTicketedResource(_ context.Context, req ResourceRequest) (Receipt, error) {
	if req.Capacity == 0 {
		return Receipt{}, fmt.Errorf("capacity must be positive")
	}
	if req.Price.IsNegative() {
		return Receipt{}, fmt.Errorf("price must not be negative")
	}

	m.mu.Lock()
	id := NewResourceID(common.HexToAddress(m.owner))
	if !m.rejected[OpCreate] {
		m.resources[id] = &memoryResource{capacity: req.Capacity, balances: make(map[string]uint64)}
	}
	txRef := m.send(OpCreate)
	m.mu.Unlock()

	return Receipt{ResourceID: id.Hex(), TxRef: txRef}, nil
}

func (m *Memory) GetTicketBalance(_ context.Context, resourceID string, holder string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.lookup(resourceID)
	if err != nil {
		return 0, err
	}
	return res.balances[holder], nil
}

func (m *Memory) Purchase(_ context.Context, resourceID string, quantity uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.lookup(resourceID)
	if err != nil {
		return "", err
	}
	if quantity == 0 {
		return "", fmt.Errorf("quantity must be positive")
	}
	if res.cancelled || res.sold+quantity > res.capacity {
		return "", fmt.Errorf("resource %s cannot sell %d more tickets", resourceID, quantity)
	}
	if !m.rejected[OpPurchase] {
		res.sold += quantity
		res.balances[m.owner] += quantity
	}
	return m.send(OpPurchase), nil
}

func (m *Memory) Cancel(_ context.Context, resourceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.lookup(resourceID)
	if err != nil {
		return "", err
	}
	if !m.rejected[OpCancel] {
		res.cancelled = true
	}
	return m.send(OpCancel), nil
}

func (m *Memory) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *Memory) lookup(resourceID string) (*memoryResource, error) {
	id, err := ParseResourceID(resourceID)
	if err != nil {
		return nil, err
	}
	res, ok := m.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicket, resourceID)
	}
	return res, nil
}

// send must be called with the lock held.
func (m *Memory) send(op string) string {
	salt := uuid.New()
	txRef := crypto.Keccak256Hash([]byte(op), salt[:]).Hex()
	conf := Confirmation{TxRef: txRef, Op: op}
	if m.rejected[op] {
		delete(m.rejected, op)
		conf.Err = ErrReverted
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-time.After(m.delay):
		case <-m.done:
			return
		}
		select {
		case m.out <- conf:
		case <-m.done:
		}
	}()
	return txRef
}
