package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-ini/ini"

	"git.sr.ht/~rjarry/mailbackend/log"
)

// Watch reloads the special folders of accts whenever accounts.conf changes
// until ctx is done. Settings URIs are not reloaded: backends already built
// keep theirs, only deferred folder lookups see the change.
func (c *Config) Watch(ctx context.Context, reloaded func()) error {
	filename := filepath.Clean(c.AccountsFile())
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// editors often replace the file, watch the directory instead
	if err := w.Add(filepath.Dir(filename)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer log.PanicHandler()
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filename {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.reloadFolders(filename); err != nil {
					log.Errorf("reload %s: %v", filename, err)
					continue
				}
				if reloaded != nil {
					reloaded()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Errorf("watch %s: %v", filename, err)
			}
		}
	}()
	return nil
}

func (c *Config) reloadFolders(filename string) error {
	file, err := ini.Load(filename)
	if err != nil {
		return err
	}
	for _, acct := range c.Accounts {
		sec, err := file.GetSection(acct.name)
		if err != nil {
			log.Warnf("account %s removed from %s, keeping folders", acct.name, filename)
			continue
		}
		acct.setFolders(readFolders(sec))
		log.Debugf("reloaded folders of %s", acct.name)
	}
	return nil
}
