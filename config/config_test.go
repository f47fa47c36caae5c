package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

func writeConf(t *testing.T, dir, name, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestMapName(t *testing.T) {
	assert.Equal(t, "storage-dir", mapName("StorageDir"))
	assert.Equal(t, "log-file", mapName("LogFile"))
	assert.Equal(t, "source", mapName("Source"))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	conf, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, conf.Root)
	assert.Equal(t, log.INFO, conf.General.LogLevel)
	assert.NotEmpty(t, conf.General.StorageDir)
	assert.NotEmpty(t, conf.General.TrustFile)
	assert.Empty(t, conf.Accounts)
}

func TestLoadGeneral(t *testing.T) {
	dir := t.TempDir()
	writeConf(t, dir, "mailbackend.conf", `
[general]
log-level = debug
storage-dir = /var/lib/mail
trust-file = /etc/mail/certs
unsafe-accounts-conf = true
`, 0o644)
	writeConf(t, dir, "accounts.conf", `
[work]
source = webdav://bob:pw@mail.example.com/
`, 0o644)

	conf, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, log.DEBUG, conf.General.LogLevel)
	assert.Equal(t, "/var/lib/mail", conf.General.StorageDir)
	assert.Equal(t, "/etc/mail/certs", conf.General.TrustFile)
	assert.True(t, conf.General.UnsafeAccountsConf)
	require.Len(t, conf.Accounts, 1)
}

func TestLoadBadLevel(t *testing.T) {
	dir := t.TempDir()
	writeConf(t, dir, "mailbackend.conf", "[general]\nlog-level = loud\n", 0o600)

	_, err := Load(dir, nil)
	assert.Error(t, err)
}

func TestLoadAccounts(t *testing.T) {
	dir := t.TempDir()
	writeConf(t, dir, "accounts.conf", `
[work]
display-name = Work Mail
source = webdav+tls+plain://bob:pw@mail.example.com/
drafts = Drafts
sent = Sent Items

[home]
source = imap://alice:pw@imap.example.com
outgoing = smtp+starttls://alice:pw@smtp.example.com
color = red
`, 0o600)

	conf, err := Load(dir, nil)
	require.NoError(t, err)
	require.Len(t, conf.Accounts, 2)

	work, err := conf.Account("work")
	require.NoError(t, err)
	assert.Equal(t, "work", work.ID())
	assert.Equal(t, "Work Mail", work.Name())
	assert.Equal(t, "webdav+tls+plain://bob:pw@mail.example.com/", work.StoreURI())
	assert.Equal(t, "", work.TransportURI())
	drafts, ok := work.SpecialFolder(models.DraftsFolder)
	assert.True(t, ok)
	assert.Equal(t, "Drafts", drafts)
	sent, _ := work.SpecialFolder(models.SentFolder)
	assert.Equal(t, "Sent Items", sent)
	_, ok = work.SpecialFolder(models.TrashFolder)
	assert.False(t, ok)
	assert.Empty(t, work.Params)

	home, err := conf.Account("HOME")
	require.NoError(t, err)
	assert.Equal(t, "home", home.Name())
	assert.Equal(t, "smtp+starttls://alice:pw@smtp.example.com", home.TransportURI())
	assert.Equal(t, map[string]string{"color": "red"}, home.Params)

	_, err = conf.Account("nope")
	assert.Error(t, err)
}

func TestLoadSelectedAccounts(t *testing.T) {
	dir := t.TempDir()
	writeConf(t, dir, "accounts.conf", `
[a]
source = imap://u:p@a.example.com
[b]
source = imap://u:p@b.example.com
[c]
source = imap://u:p@c.example.com
`, 0o600)

	conf, err := Load(dir, []string{"c", "a"})
	require.NoError(t, err)
	require.Len(t, conf.Accounts, 2)
	assert.Equal(t, "c", conf.Accounts[0].ID())
	assert.Equal(t, "a", conf.Accounts[1].ID())

	_, err = Load(dir, []string{"a", "missing"})
	assert.Error(t, err)
}

func TestLoadMissingSource(t *testing.T) {
	dir := t.TempDir()
	writeConf(t, dir, "accounts.conf", "[broken]\noutgoing = smtp://h\n", 0o600)

	_, err := Load(dir, nil)
	assert.ErrorContains(t, err, "broken")
}

func TestLoadPermissions(t *testing.T) {
	dir := t.TempDir()
	writeConf(t, dir, "accounts.conf", "[a]\nsource = imap://u:p@h\n", 0o644)

	_, err := Load(dir, nil)
	assert.ErrorContains(t, err, "permissions")
}
