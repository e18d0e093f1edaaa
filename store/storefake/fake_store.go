package storefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-access-client/store"
)

var _ store.Store = (*FakeStore)(nil)

// FakeStore keeps staged and durable copies in memory so tests can tell a Set from a Save.
type FakeStore struct {
	lock    sync.RWMutex
	staged  map[string][]byte
	durable map[string][]byte

	saves   int
	SetErr  error
	SaveErr error
	GetErr  error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		staged:  make(map[string][]byte),
		durable: make(map[string][]byte),
	}
}

// Seed writes value straight to the durable copy, as if a previous run had saved it.
func (fs *FakeStore) Seed(key string, value any) error {
	b, err := store.Encode(key, value)
	if err != nil {
		return err
	}
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.staged[key] = b
	fs.durable[key] = b
	return nil
}

func (fs *FakeStore) Get(_ context.Context, key string, dst any) (bool, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	if fs.GetErr != nil {
		return false, fs.GetErr
	}
	raw, ok := fs.staged[key]
	if !ok {
		return false, nil
	}
	return true, store.Decode(key, raw, dst)
}

func (fs *FakeStore) Set(_ context.Context, key string, value any) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}
	b, err := store.Encode(key, value)
	if err != nil {
		return err
	}
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.SetErr != nil {
		return fs.SetErr
	}
	fs.staged[key] = b
	return nil
}

func (fs *FakeStore) Delete(_ context.Context, key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.SetErr != nil {
		return fs.SetErr
	}
	delete(fs.staged, key)
	return nil
}

func (fs *FakeStore) Save(_ context.Context) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.SaveErr != nil {
		return fs.SaveErr
	}
	fs.saves++
	fs.durable = make(map[string][]byte, len(fs.staged))
	for k, v := range fs.staged {
		fs.durable[k] = v
	}
	return nil
}

// Durable decodes the last saved value at key.
func (fs *FakeStore) Durable(key string, dst any) (bool, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	raw, ok := fs.durable[key]
	if !ok {
		return false, nil
	}
	return true, store.Decode(key, raw, dst)
}

// HasDurable reports whether key survived the last Save.
func (fs *FakeStore) HasDurable(key string) bool {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	_, ok := fs.durable[key]
	return ok
}

// SaveCount is the number of successful Save calls.
func (fs *FakeStore) SaveCount() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.saves
}
