package records

import (
	"sort"
	"sync"
)

// Memory is a process-local game.RecordStore. Values are lost on exit.
type Memory struct {
	mu   sync.RWMutex
	vals map[string]int64
}

func NewMemory() *Memory { return &Memory{vals: make(map[string]int64)} }

func (m *Memory) Get(key string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	return v, ok, nil
}

func (m *Memory) Set(key string, ms int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = ms
	return nil
}

// All returns a copy of every record, smallest boards first.
func (m *Memory) All() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.vals))
	for k, v := range m.vals {
		out = append(out, Record{Key: k, Cards: cardsFromKey(k), ValueMs: v})
	}
	sortRecords(out)
	return out
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Cards != rs[j].Cards {
			return rs[i].Cards < rs[j].Cards
		}
		return rs[i].Key < rs[j].Key
	})
}
