package storage

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-maildir"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	ErrNoSuchFolder = errors.New("no such folder")
	ErrClosed       = errors.New("storage closed")
)

const (
	folderPrefix = "folder/"
	extraPrefix  = "extra/"
)

// Storage is the durable local state of one account: the known folders and
// arbitrary key/value pairs (e.g. synchronization state) in goleveldb, and
// message bodies in one maildir per folder.
type Storage struct {
	factory *Factory
	id      string
	dir     string

	mu     sync.Mutex
	db     *leveldb.DB
	closed bool
}

func (s *Storage) open() (*leveldb.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.db == nil {
		db, err := s.factory.acquire(s.id, s.dir)
		if err != nil {
			return nil, err
		}
		s.db = db
	}
	return s.db, nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	s.db = nil
	return s.factory.release(s.id)
}

func validFolder(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid folder name %q", name)
	}
	return nil
}

func (s *Storage) maildir(folder string) maildir.Dir {
	return maildir.Dir(filepath.Join(s.dir, "mail", url.PathEscape(folder)))
}

func (s *Storage) Folders() ([]string, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	var folders []string
	iter := db.NewIterator(util.BytesPrefix([]byte(folderPrefix)), nil)
	for iter.Next() {
		folders = append(folders, strings.TrimPrefix(string(iter.Key()), folderPrefix))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Strings(folders)
	return folders, nil
}

func (s *Storage) hasFolder(db *leveldb.DB, name string) error {
	ok, err := db.Has([]byte(folderPrefix+name), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNoSuchFolder)
	}
	return nil
}

// CreateFolder is a no-op for existing folders.
func (s *Storage) CreateFolder(name string) error {
	if err := validFolder(name); err != nil {
		return err
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.dir, "mail"), 0o700); err != nil {
		return err
	}
	if err := s.maildir(name).Init(); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return db.Put([]byte(folderPrefix+name), nil, nil)
}

func (s *Storage) DeleteFolder(name string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	if err := s.hasFolder(db, name); err != nil {
		return err
	}
	if err := os.RemoveAll(string(s.maildir(name))); err != nil {
		return err
	}
	return db.Delete([]byte(folderPrefix+name), nil)
}

func (s *Storage) ExtraString(key string) (string, bool, error) {
	db, err := s.open()
	if err != nil {
		return "", false, err
	}
	value, err := db.Get([]byte(extraPrefix+key), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return string(value), true, nil
}

func (s *Storage) SetExtraString(key, value string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	return db.Put([]byte(extraPrefix+key), []byte(value), nil)
}

func (s *Storage) ExtraNumber(key string) (int64, bool, error) {
	value, ok, err := s.ExtraString(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("extra %s: %w", key, err)
	}
	return n, true, nil
}

func (s *Storage) SetExtraNumber(key string, value int64) error {
	return s.SetExtraString(key, strconv.FormatInt(value, 10))
}

// SaveMessage stores msg in folder and returns its maildir key.
func (s *Storage) SaveMessage(folder string, msg io.Reader) (string, error) {
	db, err := s.open()
	if err != nil {
		return "", err
	}
	if err := s.hasFolder(db, folder); err != nil {
		return "", err
	}
	key, w, err := s.maildir(folder).Create(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, msg); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return key, nil
}

// Messages returns the keys of the messages stored in folder.
func (s *Storage) Messages(folder string) ([]string, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	if err := s.hasFolder(db, folder); err != nil {
		return nil, err
	}
	dir := s.maildir(folder)
	// moves anything delivered to new/ into cur/
	if _, err := dir.Unseen(); err != nil {
		return nil, err
	}
	keys, err := dir.Keys()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) OpenMessage(folder, key string) (io.ReadCloser, error) {
	if _, err := s.open(); err != nil {
		return nil, err
	}
	return s.maildir(folder).Open(key)
}
