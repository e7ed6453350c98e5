package badger

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixFeeInfo     = "feeinfo:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerPersistence stores fee updates in an embedded Badger database.
type BadgerPersistence struct {
	db     *badgerdb.DB
	logger *zap.Logger

	stopGC chan struct{}
	gcDone chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewBadgerPersistence opens (or creates) the database at dataPath with
// SyncWrites enabled and starts the background value log GC.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	dir, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("invalid data path %q: %w", dataPath, err)
	}

	db, err := badgerdb.Open(badgerdb.DefaultOptions(dir).
		WithLogger(newBadgerLoggerAdapter(logger)).
		WithSyncWrites(true).
		WithCompactL0OnClose(true).
		WithNumVersionsToKeep(1))
	if err != nil {
		return nil, fmt.Errorf("failed to open fee info database in %s: %w", dir, err)
	}

	if err := ensureSchemaVersion(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
		stopGC: make(chan struct{}),
		gcDone: make(chan struct{}),
	}
	go bp.collectGarbage()

	logger.Sugar().Infow("Opened fee info database", "path", dir, "schema", currentSchemaVersion)
	return bp, nil
}

// ensureSchemaVersion stamps an empty database and refuses one written by another layout.
func ensureSchemaVersion(db *badgerdb.DB) error {
	return db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		case err != nil:
			return fmt.Errorf("schema version lookup: %w", err)
		}

		stored, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("schema version lookup: %w", err)
		}
		if string(stored) != currentSchemaVersion {
			return fmt.Errorf("fee info database has schema %q, this build reads %q", stored, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) collectGarbage() {
	defer close(b.gcDone)

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
		}

		for {
			// RunValueLogGC rewrites at most one file per call
			err := b.db.RunValueLogGC(gcDiscardRatio)
			if errors.Is(err, badgerdb.ErrNoRewrite) {
				break
			}
			if err != nil {
				b.logger.Sugar().Warnw("Value log GC failed", "error", err)
				break
			}
		}
	}
}

func storageKey(key persistence.FeeInfoKey) []byte {
	return []byte(keyPrefixFeeInfo + key.String())
}

// SaveFeeInfo persists a verified fee update
func (b *BadgerPersistence) SaveFeeInfo(record *persistence.FeeInfoRecord) error {
	if record == nil || record.FeeInfo == nil {
		return fmt.Errorf("cannot save nil FeeInfoRecord")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalFeeInfoRecord(record)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(storageKey(record.Key()), data)
	})
}

// LoadFeeInfo retrieves the record stored under key
func (b *BadgerPersistence) LoadFeeInfo(key persistence.FeeInfoKey) (*persistence.FeeInfoRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(storageKey(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load fee info %s: %w", key, err)
	}

	if data == nil {
		return nil, nil
	}

	return persistence.UnmarshalFeeInfoRecord(data)
}

// ListFeeInfos iterates the token network prefix. Corrupt entries are logged and skipped.
func (b *BadgerPersistence) ListFeeInfos(tokenNetworkAddress common.Address) ([]*persistence.FeeInfoRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	records := make([]*persistence.FeeInfoRecord, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixFeeInfo + persistence.TokenNetworkPrefix(tokenNetworkAddress))

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalFeeInfoRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal FeeInfoRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list fee infos: %w", err)
	}

	persistence.SortRecords(records)
	return records, nil
}

// DeleteFeeInfo removes the record stored under key
func (b *BadgerPersistence) DeleteFeeInfo(key persistence.FeeInfoKey) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(storageKey(key))
	})
}

// Close stops the GC goroutine and closes the database
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	close(b.stopGC)
	<-b.gcDone

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close fee info database: %w", err)
	}

	b.logger.Sugar().Info("Closed fee info database")
	return nil
}

// HealthCheck reads the schema version to verify the database is accessible
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get([]byte(keySchemaVersion)); err != nil {
			return fmt.Errorf("schema version unreadable: %w", err)
		}
		return nil
	})
}
