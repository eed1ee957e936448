package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"servicemarket/internal/domain"
)

// Store persists the session between process runs.
type Store interface {
	Load() (domain.Session, error)
	Save(s domain.Session) error
	Clear() error
	Close() error
}

// MemoryStore keeps the session for the lifetime of the process only.
type MemoryStore struct {
	mu sync.Mutex
	s  domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *MemoryStore) Save(s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.Save(domain.Session{})
}

func (m *MemoryStore) Close() error { return nil }

var (
	bucketSession = []byte("session")
	keyCurrent    = []byte("current")
)

// BoltStore keeps the session in a bbolt file so a CLI restart stays signed in.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Load() (domain.Session, error) {
	var s domain.Session
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(keyCurrent)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &s)
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

func (b *BoltStore) Save(s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyCurrent, data)
	})
}

func (b *BoltStore) Clear() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketSession).Delete(keyCurrent)
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
