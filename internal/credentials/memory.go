package credentials

import (
	"context"
	"maps"
	"sync"

	"github.com/pribylovaa/go-workconnect/internal/models"
)

// Memory — хранилище ключ-значение в памяти процесса.
type Memory struct {
	mu sync.Mutex
	kv map[string]string
}

func NewMemory() *Memory {
	return &Memory{kv: make(map[string]string, len(WriteOrder))}
}

func (m *Memory) Save(_ context.Context, cs *models.CredentialSet) error {
	kv, err := Encode(cs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range WriteOrder {
		m.kv[k] = kv[k]
	}

	return nil
}

func (m *Memory) Load(_ context.Context) (*models.CredentialSet, error) {
	m.mu.Lock()
	kv := maps.Clone(m.kv)
	m.mu.Unlock()

	return Decode(kv)
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range WriteOrder {
		delete(m.kv, k)
	}

	return nil
}

// SetRaw пишет один ключ в обход Save (имитация частично записанного устройства).
func (m *Memory) SetRaw(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.kv[key] = value
}

// Raw читает один ключ.
func (m *Memory) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.kv[key]
	return v, ok
}
