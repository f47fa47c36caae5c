package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-ini/ini"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

// RemoteConfig is a settings URI along with the optional ways to obtain its
// password.
type RemoteConfig struct {
	Value   string
	CredCmd string
	// <service>[:<key>], the key defaults to the URI username
	Keyring string
	cache   string
}

// ConnectionString returns Value with the password filled in from the
// credential command or the keyring. A password already present in the URI
// takes precedence.
func (c *RemoteConfig) ConnectionString() (string, error) {
	if c.Value == "" || (c.CredCmd == "" && c.Keyring == "") {
		return c.Value, nil
	}

	u, err := url.Parse(c.Value)
	if err != nil {
		return "", err
	}
	// ignore the command if a password is specified
	if _, exists := u.User.Password(); exists {
		return c.Value, nil
	}
	if !u.IsAbs() {
		return c.Value, nil
	}

	pw := c.cache
	if pw == "" {
		if c.CredCmd != "" {
			pw, err = runCredCmd(c.CredCmd)
		} else {
			pw, err = keyringPassword(c.Keyring, u.User.Username())
		}
		if err != nil {
			return "", err
		}
		c.cache = pw
	}
	u.User = url.UserPassword(u.User.Username(), pw)
	return u.String(), nil
}

type accountSection struct {
	DisplayName string `ini:"display-name"`
	Source      string `ini:"source"`
	SourceCred  string `ini:"source-cred-cmd"`
	SourceKey   string `ini:"source-keyring"`
	Outgoing    string `ini:"outgoing"`
	OutCred     string `ini:"outgoing-cred-cmd"`
	OutKey      string `ini:"outgoing-keyring"`
}

var accountKeys = map[string]bool{
	"display-name":      true,
	"source":            true,
	"source-cred-cmd":   true,
	"source-keyring":    true,
	"outgoing":          true,
	"outgoing-cred-cmd": true,
	"outgoing-keyring":  true,
}

// AccountConfig is one section of accounts.conf. It implements
// backend.Account; the special folders may change at runtime (see Watch).
type AccountConfig struct {
	name        string
	displayName string
	Source      RemoteConfig
	Outgoing    RemoteConfig
	// unknown keys, kept for diagnostics
	Params map[string]string

	mu       sync.RWMutex
	source   string
	outgoing string
	folders  map[models.FolderRole]string
}

var _ backend.Account = (*AccountConfig)(nil)

func (a *AccountConfig) ID() string { return a.name }

func (a *AccountConfig) Name() string {
	if a.displayName != "" {
		return a.displayName
	}
	return a.name
}

func (a *AccountConfig) StoreURI() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.source
}

func (a *AccountConfig) TransportURI() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.outgoing
}

func (a *AccountConfig) SpecialFolder(role models.FolderRole) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	name, ok := a.folders[role]
	return name, ok
}

func (a *AccountConfig) setFolders(folders map[models.FolderRole]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.folders = folders
}

func readFolders(sec *ini.Section) map[models.FolderRole]string {
	folders := make(map[models.FolderRole]string)
	for _, role := range models.FolderRoles {
		if key, err := sec.GetKey(string(role)); err == nil && key.String() != "" {
			folders[role] = key.String()
		}
	}
	return folders
}

func isFolderKey(key string) bool {
	for _, role := range models.FolderRoles {
		if key == string(role) {
			return true
		}
	}
	return false
}

func contains(list []string, item string) bool {
	for _, x := range list {
		if x == item {
			return true
		}
	}
	return false
}

func parseAccounts(filename string, accts []string, checkPerms bool) ([]*AccountConfig, error) {
	if checkPerms {
		if err := checkConfigPerms(filename); err != nil {
			return nil, err
		}
	}

	log.Debugf("Parsing accounts configuration from %s", filename)

	file, err := ini.Load(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	file.NameMapper = mapName

	var accounts []*AccountConfig
	for _, _sec := range file.SectionStrings() {
		if _sec == ini.DefaultSection {
			continue
		}
		if len(accts) > 0 && !contains(accts, _sec) {
			continue
		}
		sec := file.Section(_sec)
		var raw accountSection
		if err := sec.MapTo(&raw); err != nil {
			return nil, err
		}
		account := &AccountConfig{
			name:        _sec,
			displayName: raw.DisplayName,
			Source: RemoteConfig{
				Value: raw.Source, CredCmd: raw.SourceCred, Keyring: raw.SourceKey,
			},
			Outgoing: RemoteConfig{
				Value: raw.Outgoing, CredCmd: raw.OutCred, Keyring: raw.OutKey,
			},
			Params:  make(map[string]string),
			folders: readFolders(sec),
		}
		for key, val := range sec.KeysHash() {
			if !accountKeys[key] && !isFolderKey(key) {
				account.Params[key] = val
			}
		}
		if account.Source.Value == "" {
			return nil, fmt.Errorf("Expected source for account %s", _sec)
		}
		account.source, err = account.Source.ConnectionString()
		if err != nil {
			return nil, fmt.Errorf("Invalid source credentials for %s: %w", _sec, err)
		}
		account.outgoing, err = account.Outgoing.ConnectionString()
		if err != nil {
			return nil, fmt.Errorf("Invalid outgoing credentials for %s: %w", _sec, err)
		}
		for key := range account.Params {
			log.Warnf("accounts.conf: [%s] unknown key %q", _sec, key)
		}
		accounts = append(accounts, account)
	}
	if len(accts) > 0 {
		if len(accounts) != len(accts) {
			return nil, errors.New("account(s) not found")
		}
		// keep the order given on the command line
		index := make(map[string]int, len(accts))
		for i, name := range accts {
			index[name] = i
		}
		sort.Slice(accounts, func(i, j int) bool {
			return index[accounts[i].name] < index[accounts[j].name]
		})
	}
	return accounts, nil
}

// checkConfigPerms checks for too open permissions
// printing the fix on stderr and returning an error
func checkConfigPerms(filename string) error {
	info, err := os.Stat(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil // disregard absent files
	}
	if err != nil {
		return err
	}

	perms := info.Mode().Perm()
	// group or others have read access
	if perms&0o44 != 0 {
		fmt.Fprintf(os.Stderr, "The file %v has too open permissions.\n", filename)
		fmt.Fprintln(os.Stderr, "This is a security issue (it contains passwords).")
		fmt.Fprintf(os.Stderr, "To fix it, run `chmod 600 %v`\n", filename)
		return errors.New("accounts.conf permissions too lax")
	}
	return nil
}

// Account returns the account named name (section name).
func (c *Config) Account(name string) (*AccountConfig, error) {
	for _, acct := range c.Accounts {
		if strings.EqualFold(acct.name, name) {
			return acct, nil
		}
	}
	return nil, fmt.Errorf("no such account: %s", name)
}
