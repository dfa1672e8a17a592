package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"neurolab/internal/model"
)

const (
	snapshotPrefix    = "snapshot/"
	runPrefix         = "run/"
	diagnosticsPrefix = "steps/"
)

// BadgerStore keeps records in an embedded badger database. An empty path
// keeps the database in memory.
type BadgerStore struct {
	path string

	mu sync.RWMutex
	db *badger.DB
}

func NewBadgerStore(path string) *BadgerStore {
	return &BadgerStore{path: path}
}

func (s *BadgerStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db != nil {
		return nil
	}

	var opts badger.Options
	if s.path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.path, 0o750); err != nil {
			return fmt.Errorf("create badger directory %s: %w", s.path, err)
		}
		opts = badger.DefaultOptions(s.path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	s.db = db
	return nil
}

func (s *BadgerStore) SaveSnapshot(ctx context.Context, snapshot model.Snapshot) error {
	payload, err := EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	return s.put(ctx, snapshotPrefix+snapshot.ID, payload)
}

func (s *BadgerStore) GetSnapshot(ctx context.Context, id string) (model.Snapshot, bool, error) {
	payload, ok, err := s.get(ctx, snapshotPrefix+id)
	if err != nil || !ok {
		return model.Snapshot{}, false, err
	}
	snapshot, err := DecodeSnapshot(payload)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return snapshot, true, nil
}

func (s *BadgerStore) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	var out []model.Snapshot
	err := s.scan(ctx, snapshotPrefix, func(key string, payload []byte) error {
		snapshot, err := DecodeSnapshot(payload)
		if err != nil {
			return fmt.Errorf("decode snapshot %s: %w", key, err)
		}
		out = append(out, withoutPayload(snapshot))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortSnapshots(out)
	return out, nil
}

func (s *BadgerStore) DeleteSnapshot(ctx context.Context, id string) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(snapshotPrefix + id))
	})
}

func (s *BadgerStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	return s.put(ctx, runPrefix+run.RunID, payload)
}

func (s *BadgerStore) GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error) {
	payload, ok, err := s.get(ctx, runPrefix+runID)
	if err != nil || !ok {
		return model.RunRecord{}, false, err
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, true, nil
}

func (s *BadgerStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	var out []model.RunRecord
	err := s.scan(ctx, runPrefix, func(key string, payload []byte) error {
		run, err := DecodeRun(payload)
		if err != nil {
			return fmt.Errorf("decode run %s: %w", key, err)
		}
		out = append(out, run)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRuns(out)
	return out, nil
}

func (s *BadgerStore) SaveStepDiagnostics(ctx context.Context, runID string, diagnostics []model.StepDiagnostics) error {
	payload, err := EncodeStepDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.put(ctx, diagnosticsPrefix+runID, payload)
}

func (s *BadgerStore) GetStepDiagnostics(ctx context.Context, runID string) ([]model.StepDiagnostics, bool, error) {
	payload, ok, err := s.get(ctx, diagnosticsPrefix+runID)
	if err != nil || !ok {
		return nil, false, err
	}
	diagnostics, err := DecodeStepDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode step diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) getDB(ctx context.Context) (*badger.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func (s *BadgerStore) put(ctx context.Context, key string, value []byte) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *BadgerStore) get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, false, err
	}

	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *BadgerStore) scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()[len(prefix):]), value); err != nil {
				return err
			}
		}
		return nil
	})
}
