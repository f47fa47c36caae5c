package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode"

	"github.com/go-ini/ini"
	"github.com/mattn/go-isatty"

	"git.sr.ht/~rjarry/mailbackend/lib/xdg"
	"git.sr.ht/~rjarry/mailbackend/log"
)

type GeneralConfig struct {
	LogFile            string       `ini:"log-file"`
	LogLevel           log.LogLevel `ini:"-"`
	StorageDir         string       `ini:"storage-dir"`
	TrustFile          string       `ini:"trust-file"`
	UnsafeAccountsConf bool         `ini:"unsafe-accounts-conf"`
}

func defaultGeneralConfig() GeneralConfig {
	return GeneralConfig{
		LogLevel:   log.INFO,
		StorageDir: xdg.DataPath(xdg.App, "storage"),
		TrustFile:  xdg.DataPath(xdg.App, "trusted-certs"),
	}
}

type Config struct {
	Root     string
	General  GeneralConfig
	Accounts []*AccountConfig
}

// Input: StorageDir
// Output: storage-dir
func mapName(raw string) string {
	newstr := make([]rune, 0, len(raw))
	for i, chr := range raw {
		if isUpper := 'A' <= chr && chr <= 'Z'; isUpper {
			if i > 0 {
				newstr = append(newstr, '-')
			}
		}
		newstr = append(newstr, unicode.ToLower(chr))
	}
	return string(newstr)
}

// Load reads mailbackend.conf and accounts.conf from root, or from the XDG
// config directory when root is empty. When accts is not empty, only these
// accounts are loaded and all of them must exist.
func Load(root string, accts []string) (*Config, error) {
	if root == "" {
		root = xdg.ConfigPath(xdg.App)
	}
	conf := &Config{Root: root, General: defaultGeneralConfig()}

	filename := filepath.Join(root, "mailbackend.conf")
	file, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters: "=",
	}, filename)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debugf("%s not found, using defaults", filename)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", filename, err)
	default:
		file.NameMapper = mapName
		if err := conf.parseGeneral(file); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	}

	conf.Accounts, err = parseAccounts(conf.AccountsFile(), accts,
		!conf.General.UnsafeAccountsConf)
	if err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) AccountsFile() string {
	return filepath.Join(c.Root, "accounts.conf")
}

func (c *Config) parseGeneral(file *ini.File) error {
	gen, err := file.GetSection("general")
	if err != nil {
		return nil
	}
	if err := gen.MapTo(&c.General); err != nil {
		return err
	}
	if level, err := gen.GetKey("log-level"); err == nil {
		l, err := log.ParseLevel(level.String())
		if err != nil {
			return err
		}
		c.General.LogLevel = l
	}
	c.General.StorageDir = xdg.ExpandHome(c.General.StorageDir)
	c.General.TrustFile = xdg.ExpandHome(c.General.TrustFile)
	return nil
}

// InitLogging sends the log to stderr when it is redirected (forcing the
// DEBUG level) or verbose is set, otherwise to log-file if configured.
func (c *Config) InitLogging(verbose bool) error {
	var logFile *os.File

	if verbose || !isatty.IsTerminal(os.Stderr.Fd()) {
		logFile = os.Stderr
		// redirected to file, force DEBUG level
		c.General.LogLevel = log.DEBUG
	} else if c.General.LogFile != "" {
		var err error
		logFile, err = os.OpenFile(xdg.ExpandHome(c.General.LogFile),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("log-file: %w", err)
		}
	}
	var err error
	if logFile != nil {
		err = log.Init(logFile, c.General.LogLevel)
	} else {
		err = log.Init(nil, c.General.LogLevel)
	}
	if err != nil {
		return err
	}
	log.Debugf("mailbackend.conf: [general] %#v", c.General)
	return nil
}
