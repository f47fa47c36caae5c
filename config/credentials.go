package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/99designs/keyring"
	"github.com/google/shlex"

	"git.sr.ht/~rjarry/mailbackend/lib/xdg"
)

// runCredCmd runs a command such as "pass show mail/work" and returns the
// first line of its output.
func runCredCmd(command string) (string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return "", fmt.Errorf("cred-cmd: %w", err)
	}
	if len(args) == 0 {
		return "", errors.New("cred-cmd: empty command")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(pw), nil
}

// assign to a var to allow mocking in unit tests
var openKeyring = func(service string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  xdg.DataPath(xdg.App, "keyring"),
		FilePasswordFunc:         keyring.TerminalPrompt,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// keyringPassword looks up ref ("<service>[:<key>]") in the system keyring.
func keyringPassword(ref, username string) (string, error) {
	service, key, found := strings.Cut(ref, ":")
	if !found || key == "" {
		key = username
	}
	if service == "" || key == "" {
		return "", fmt.Errorf("invalid keyring reference %q", ref)
	}
	ring, err := openKeyring(service)
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}
