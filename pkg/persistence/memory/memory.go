package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
)

// MemoryPersistence is an in-memory implementation of IFeeInfoPersistence.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies records to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// storage key -> record
	records map[string]*persistence.FeeInfoRecord

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a warning since fee updates are lost on restart.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL FEE UPDATES WILL BE LOST ON RESTART")
	fmt.Println("⚠️  Set PFS_PERSISTENCE_TYPE=badger or redis to keep fee updates across restarts")

	return &MemoryPersistence{
		records: make(map[string]*persistence.FeeInfoRecord),
	}
}

// SaveFeeInfo persists a verified fee update.
func (m *MemoryPersistence) SaveFeeInfo(record *persistence.FeeInfoRecord) error {
	if record == nil || record.FeeInfo == nil {
		return fmt.Errorf("cannot save nil FeeInfoRecord")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.records[record.Key().String()] = copyRecord(record)
	return nil
}

// LoadFeeInfo retrieves the record stored under key.
func (m *MemoryPersistence) LoadFeeInfo(key persistence.FeeInfoKey) (*persistence.FeeInfoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	record, exists := m.records[key.String()]
	if !exists {
		return nil, nil
	}
	return copyRecord(record), nil
}

// ListFeeInfos returns every record of a token network.
func (m *MemoryPersistence) ListFeeInfos(tokenNetworkAddress common.Address) ([]*persistence.FeeInfoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	prefix := persistence.TokenNetworkPrefix(tokenNetworkAddress)
	records := make([]*persistence.FeeInfoRecord, 0)
	for key, record := range m.records {
		if strings.HasPrefix(key, prefix) {
			records = append(records, copyRecord(record))
		}
	}

	persistence.SortRecords(records)
	return records, nil
}

// DeleteFeeInfo removes the record stored under key.
func (m *MemoryPersistence) DeleteFeeInfo(key persistence.FeeInfoKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	delete(m.records, key.String())
	return nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}

func copyRecord(r *persistence.FeeInfoRecord) *persistence.FeeInfoRecord {
	return &persistence.FeeInfoRecord{
		FeeInfo:    r.FeeInfo.Copy(),
		Signer:     r.Signer,
		ReceivedAt: r.ReceivedAt,
	}
}
