package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one confirmed mint as relayed by the gateway.
type Record struct {
	OrderID  string    `json:"orderId"`
	Buyer    string    `json:"buyer"`
	TxHash   string    `json:"txHash"`
	TokenID  string    `json:"tokenId"`
	MintedAt time.Time `json:"mintedAt"`
}

// Store is an append-only audit trail of mints. The gateway never reads it back.
type Store interface {
	Append(ctx context.Context, record Record) error
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

// Records returns a copy of everything appended so far, oldest first.
func (m *MemoryStore) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

// FileStore keeps the journal as a JSON array on disk. Suitable for local dev.
type FileStore struct {
	path    string
	mu      sync.Mutex
	records []Record
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.records)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.records, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Append(_ context.Context, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	if err := f.persist(); err != nil {
		f.records = f.records[:len(f.records)-1]
		return err
	}
	return nil
}
