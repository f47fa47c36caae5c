// Package backendtest provides in-memory collaborators for testing backend
// factories.
package backendtest

import (
	"crypto/tls"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/models"
)

type Account struct {
	mu        sync.RWMutex
	id        string
	name      string
	store     string
	transport string
	folders   map[models.FolderRole]string
}

func NewAccount(name, storeURI, transportURI string) *Account {
	return &Account{
		id:        name,
		name:      name,
		store:     storeURI,
		transport: transportURI,
		folders:   make(map[models.FolderRole]string),
	}
}

func (a *Account) ID() string { return a.id }

func (a *Account) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

func (a *Account) StoreURI() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

func (a *Account) TransportURI() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.transport
}

func (a *Account) SpecialFolder(role models.FolderRole) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	name, ok := a.folders[role]
	return name, ok
}

// SetFolder assigns a role; an empty name removes it.
func (a *Account) SetFolder(role models.FolderRole, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if name == "" {
		delete(a.folders, role)
	} else {
		a.folders[role] = name
	}
}

var ErrClosed = errors.New("storage closed")

// Storage keeps everything in maps.
type Storage struct {
	mu       sync.Mutex
	Account  string
	folders  map[string][]string
	extras   map[string]string
	closed   bool
	sequence int
}

func (s *Storage) Folders() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(s.folders))
	for name := range s.folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) CreateFolder(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.folders[name]; !ok {
		s.folders[name] = nil
	}
	return nil
}

func (s *Storage) DeleteFolder(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.folders, name)
	return nil
}

func (s *Storage) ExtraString(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.extras[key]
	return v, ok, nil
}

func (s *Storage) SetExtraString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.extras[key] = value
	return nil
}

func (s *Storage) SaveMessage(folder string, msg io.Reader) (string, error) {
	body, err := io.ReadAll(msg)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if _, ok := s.folders[folder]; !ok {
		return "", errors.New("no such folder: " + folder)
	}
	s.sequence++
	s.folders[folder] = append(s.folders[folder], string(body))
	return strconv.Itoa(s.sequence), nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Storage) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// StorageFactory hands out a fresh Storage per call and remembers them.
type StorageFactory struct {
	mu      sync.Mutex
	Err     error
	Created []*Storage
}

func (f *StorageFactory) CreateBackendStorage(acct backend.Account) (backend.Storage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	s := &Storage{
		Account: acct.ID(),
		folders: make(map[string][]string),
		extras:  make(map[string]string),
	}
	f.Created = append(f.Created, s)
	return s, nil
}

// Trust accepts whatever the test server presents.
type Trust struct{}

func (Trust) TLSConfig(host string, port int) *tls.Config {
	return &tls.Config{ServerName: host, InsecureSkipVerify: true} //nolint:gosec // tests only
}
