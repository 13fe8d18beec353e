// Package qlearn provides a tabular Q-learning dispatch policy with
// persistent value storage. Learned values survive across runs; a missing or
// damaged store never blocks a simulation, it only costs the learned state.
package qlearn

import (
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Store persists Q-table rows, one row per serialized state.
type Store interface {
	// LoadAll returns every persisted row. Implementations skip rows they
	// cannot decode rather than failing the whole load.
	LoadAll() (map[string]map[int]float64, error)
	// SaveRow persists the action-value row for one state.
	SaveRow(state string, actions map[int]float64) error
	Close() error
}

// MemoryStore is an in-process Store for tests and ephemeral runs.
type MemoryStore struct {
	rows map[string]map[int]float64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]map[int]float64)}
}

func (s *MemoryStore) LoadAll() (map[string]map[int]float64, error) {
	out := make(map[string]map[int]float64, len(s.rows))
	for state, row := range s.rows {
		cp := make(map[int]float64, len(row))
		for a, q := range row {
			cp[a] = q
		}
		out[state] = cp
	}
	return out, nil
}

func (s *MemoryStore) SaveRow(state string, actions map[int]float64) error {
	cp := make(map[int]float64, len(actions))
	for a, q := range actions {
		cp[a] = q
	}
	s.rows[state] = cp
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// BadgerStore keeps the Q-table in a Badger database, one key per state with
// a JSON-encoded action-value row.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the Q-table database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) LoadAll() (map[string]map[int]float64, error) {
	rows := make(map[string]map[int]float64)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			state := string(item.Key())
			err := item.Value(func(val []byte) error {
				var row map[int]float64
				if err := json.Unmarshal(val, &row); err != nil {
					logrus.Warnf("qtable: skipping corrupt row for state %q: %v", state, err)
					return nil
				}
				rows[state] = row
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BadgerStore) SaveRow(state string, actions map[int]float64) error {
	buf, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(state), buf)
	})
}

func (s *BadgerStore) Close() error { return s.db.Close() }
