package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/log"
)

type sharedDB struct {
	db   *leveldb.DB
	refs int
}

// Factory hands out per-account storages rooted in one directory. Several
// storages of the same account share a single database handle since
// goleveldb locks its directory.
type Factory struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sharedDB
}

func NewFactory(root string) *Factory {
	return &Factory{root: root, dbs: make(map[string]*sharedDB)}
}

// CreateBackendStorage implements backend.StorageFactory.
func (f *Factory) CreateBackendStorage(acct backend.Account) (backend.Storage, error) {
	s, err := f.Open(acct)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open returns the storage of acct. Nothing is opened until the storage is
// first used.
func (f *Factory) Open(acct backend.Account) (*Storage, error) {
	id := acct.ID()
	if id == "" {
		return nil, errors.New("storage: account without identifier")
	}
	return &Storage{
		factory: f,
		id:      id,
		dir:     filepath.Join(f.root, url.PathEscape(id)),
	}, nil
}

func (f *Factory) acquire(id, dir string) (*leveldb.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if shared, ok := f.dbs[id]; ok {
		shared.refs++
		return shared.db, nil
	}
	state := filepath.Join(dir, "state")
	if err := os.MkdirAll(state, 0o700); err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(state, nil)
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", id, err)
	}
	log.Debugf("opened storage for %s in %s", id, state)
	f.dbs[id] = &sharedDB{db: db, refs: 1}
	return db, nil
}

func (f *Factory) release(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	shared, ok := f.dbs[id]
	if !ok {
		return nil
	}
	shared.refs--
	if shared.refs > 0 {
		return nil
	}
	delete(f.dbs, id)
	log.Debugf("closing storage for %s", id)
	return shared.db.Close()
}
