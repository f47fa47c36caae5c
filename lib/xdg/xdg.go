package xdg

import (
	"os"
	"path/filepath"
	"runtime"
)

// App is the directory name used below every base directory.
const App = "mailbackend"

type baseDir struct {
	env    string
	linux  string
	darwin string
}

var (
	cacheDir  = baseDir{"XDG_CACHE_HOME", "~/.cache", "~/Library/Caches"}
	configDir = baseDir{"XDG_CONFIG_HOME", "~/.config", "~/Library/Preferences"}
	dataDir   = baseDir{"XDG_DATA_HOME", "~/.local/share", "~/Library/Application Support"}
)

// resolve joins paths and, unless the result is already absolute, prefixes
// it with the base directory from the environment or the platform default.
func (d baseDir) resolve(paths ...string) string {
	res := filepath.Join(paths...)
	if filepath.IsAbs(res) {
		return res
	}
	base := os.Getenv(d.env)
	if base == "" {
		if runtime.GOOS == "darwin" {
			base = ExpandHome(d.darwin)
		} else {
			base = ExpandHome(d.linux)
		}
	}
	return filepath.Join(base, res)
}

// Return a path relative to the user home cache dir
func CachePath(paths ...string) string {
	return cacheDir.resolve(paths...)
}

// Return a path relative to the user home config dir
func ConfigPath(paths ...string) string {
	return configDir.resolve(paths...)
}

// Return a path relative to the user data home dir
func DataPath(paths ...string) string {
	return dataDir.resolve(paths...)
}
