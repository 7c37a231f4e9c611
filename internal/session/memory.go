package session

import (
	"sync"

	"github.com/example/shopfront/internal/datamodels/identity"
)

// MemoryStore 进程内会话存储，测试和 --ephemeral 模式使用
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) Load() (*identity.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return decode(s.entries[KeyToken], s.entries[KeyUser])
}

func (s *MemoryStore) Save(id *identity.Identity) error {
	token, user, err := encode(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[KeyToken] = token
	s.entries[KeyUser] = user
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, KeyToken)
	delete(s.entries, KeyUser)
	return nil
}

// Put 直接写入原始条目，用于模拟被篡改或残缺的本地数据
func (s *MemoryStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}
