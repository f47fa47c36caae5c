package xdg

import (
	"errors"
	"os/user"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pathVector struct {
	args     []string
	env      map[string]string
	expected map[string]string
}

func checkPaths(t *testing.T, fn func(...string) string, vectors []pathVector) {
	t.Helper()
	t.Setenv("HOME", "/home/user")
	for _, vec := range vectors {
		expected, found := vec.expected[runtime.GOOS]
		if !found {
			expected = vec.expected[""]
		}
		t.Run(expected, func(t *testing.T) {
			for key, value := range vec.env {
				t.Setenv(key, value)
			}
			assert.Equal(t, expected, fn(vec.args...))
		})
	}
}

func TestCachePath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	checkPaths(t, CachePath, []pathVector{
		{
			args: []string{App, "work-oauthbearer.token"},
			expected: map[string]string{
				"":       "/home/user/.cache/mailbackend/work-oauthbearer.token",
				"darwin": "/home/user/Library/Caches/mailbackend/work-oauthbearer.token",
			},
		},
		{
			args:     []string{App, "foo/zuul"},
			env:      map[string]string{"XDG_CACHE_HOME": "/home/x/.cache"},
			expected: map[string]string{"": "/home/x/.cache/mailbackend/foo/zuul"},
		},
		{
			args:     []string{"/var/cache/mailbackend"},
			expected: map[string]string{"": "/var/cache/mailbackend"},
		},
	})
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	checkPaths(t, ConfigPath, []pathVector{
		{
			args: []string{App, "accounts.conf"},
			expected: map[string]string{
				"":       "/home/user/.config/mailbackend/accounts.conf",
				"darwin": "/home/user/Library/Preferences/mailbackend/accounts.conf",
			},
		},
		{
			args:     []string{},
			env:      map[string]string{"XDG_CONFIG_HOME": "/blah"},
			expected: map[string]string{"": "/blah"},
		},
	})
}

func TestDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	checkPaths(t, DataPath, []pathVector{
		{
			args: []string{App, "storage"},
			expected: map[string]string{
				"":       "/home/user/.local/share/mailbackend/storage",
				"darwin": "/home/user/Library/Application Support/mailbackend/storage",
			},
		},
		{
			args:     []string{App, "storage"},
			env:      map[string]string{"XDG_DATA_HOME": "/users/x/.local/share"},
			expected: map[string]string{"": "/users/x/.local/share/mailbackend/storage"},
		},
	})
}

func TestHomeDir(t *testing.T) {
	t.Run("from env", func(t *testing.T) {
		t.Setenv("HOME", "/home/user")
		assert.Equal(t, "/home/user", HomeDir())
	})
	t.Run("from getpwuid_r", func(t *testing.T) {
		t.Setenv("HOME", "")
		orig := currentUser
		defer func() { currentUser = orig }()
		currentUser = func() (*user.User, error) {
			return &user.User{HomeDir: "/home/user"}, nil
		}
		assert.Equal(t, "/home/user", HomeDir())
	})
	t.Run("failure", func(t *testing.T) {
		t.Setenv("HOME", "")
		orig := currentUser
		defer func() { currentUser = orig }()
		currentUser = func() (*user.User, error) {
			return nil, errors.New("no such user")
		}
		assert.Equal(t, "", HomeDir())
	})
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/user")
	vectors := []struct {
		args     []string
		expected string
	}{
		{args: []string{"foo"}, expected: "foo"},
		{args: []string{"foo", "bar"}, expected: "foo/bar"},
		{args: []string{"/foobar/baz"}, expected: "/foobar/baz"},
		{args: []string{"~/foobar/baz"}, expected: "/home/user/foobar/baz"},
		{args: []string{}, expected: ""},
		{args: []string{"~"}, expected: "/home/user"},
	}
	for _, vec := range vectors {
		assert.Equal(t, vec.expected, ExpandHome(vec.args...), vec.args)
	}
}
