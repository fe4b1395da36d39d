package sessionrepofake

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jrsteele09/tutorhub-session/session"
)

var _ session.Storage = (*FakeStorage)(nil)

// FakeStorage keeps the record JSON-encoded so a new Manager over the same
// FakeStorage behaves like a process restart.
type FakeStorage struct {
	lock  sync.Mutex
	data  []byte
	saves int

	LoadErr error
	SaveErr error
	// LoadGate, when set, holds Load until it is closed.
	LoadGate chan struct{}
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{}
}

func (fs *FakeStorage) Load(ctx context.Context) (*session.Record, error) {
	if fs.LoadGate != nil {
		select {
		case <-fs.LoadGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.LoadErr != nil {
		return nil, fs.LoadErr
	}
	if fs.data == nil {
		return nil, nil
	}
	var r session.Record
	if err := json.Unmarshal(fs.data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (fs *FakeStorage) Save(_ context.Context, record session.Record) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.SaveErr != nil {
		return fs.SaveErr
	}
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}
	fs.data = b
	fs.saves++
	return nil
}

// Raw returns the stored JSON.
func (fs *FakeStorage) Raw() []byte {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return append([]byte(nil), fs.data...)
}

// Put replaces the stored JSON, e.g. to seed a tampered record.
func (fs *FakeStorage) Put(raw []byte) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.data = append([]byte(nil), raw...)
}

func (fs *FakeStorage) Saves() int {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.saves
}
