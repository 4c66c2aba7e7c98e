package registry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidityNest/internal/model"
)

// Store persists asset records keyed by asset id with a secondary
// index from owner to ids. Records are never deleted.
type Store interface {
	Get(id common.Hash) (model.AssetRecord, bool, error)
	Put(record model.AssetRecord) error
	IDsByOwner(owner common.Address) ([]common.Hash, error)
	Count() (uint64, error)
}

// MemoryStore keeps asset records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[common.Hash]model.AssetRecord
	byOwner map[common.Address][]common.Hash
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[common.Hash]model.AssetRecord),
		byOwner: make(map[common.Address][]common.Hash),
	}
}

func (s *MemoryStore) Get(id common.Hash) (model.AssetRecord, bool, error) {
	s.mu.RLock()
	record, ok := s.records[id]
	s.mu.RUnlock()
	return record, ok, nil
}

func (s *MemoryStore) Put(record model.AssetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; !exists {
		s.byOwner[record.Owner] = append(s.byOwner[record.Owner], record.ID)
	}
	s.records[record.ID] = record
	return nil
}

func (s *MemoryStore) IDsByOwner(owner common.Address) ([]common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[owner]
	out := make([]common.Hash, len(ids))
	copy(out, ids)
	return out, nil
}

func (s *MemoryStore) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}
