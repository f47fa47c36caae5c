package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerSettingsEqual(t *testing.T) {
	base := ServerSettings{
		Scheme:   "webdav",
		Host:     "mail.example.com",
		Username: "user",
		Extra:    map[string]string{"path": "/exchange"},
	}
	assert.True(t, base.Equal(base.Clone()))

	noExtra := base
	noExtra.Extra = nil
	empty := base
	empty.Extra = map[string]string{}
	assert.True(t, noExtra.Equal(empty))
	assert.False(t, base.Equal(noExtra))

	emptyValue := base.Clone()
	emptyValue.Extra["auth-path"] = ""
	assert.False(t, base.Equal(emptyValue))
	assert.False(t, emptyValue.Equal(base))

	other := base.Clone()
	other.Extra["path"] = "/owa"
	assert.False(t, base.Equal(other))

	port := base
	port.Port = 443
	assert.False(t, base.Equal(port))
}

func TestServerSettingsClone(t *testing.T) {
	s := ServerSettings{Extra: map[string]string{"a": "1"}}
	c := s.Clone()
	c.Extra["a"] = "2"
	assert.Equal(t, "1", s.Extra["a"])
	assert.Nil(t, ServerSettings{}.Clone().Extra)
}

func TestServerSettingsAddr(t *testing.T) {
	assert.Equal(t, "mail.example.com:443",
		ServerSettings{Host: "mail.example.com"}.Addr(443))
	assert.Equal(t, "mail.example.com:8443",
		ServerSettings{Host: "mail.example.com", Port: 8443}.Addr(443))
	assert.Equal(t, "[::1]:993", ServerSettings{Host: "::1"}.Addr(993))
}

func TestServerSettingsRedacted(t *testing.T) {
	s := ServerSettings{
		Scheme:   "webdav",
		Host:     "mail.example.com",
		Port:     443,
		Username: "user@example.com",
		Password: "secret",
		Extra:    map[string]string{"path": "/exchange"},
	}
	r := s.Redacted()
	assert.NotContains(t, r, "secret")
	assert.Equal(t,
		`webdav mail.example.com:443 security=implicit-tls auth=plain `+
			`user=user@example.com password=*** path="/exchange"`, r)
}

func TestParseEnums(t *testing.T) {
	for _, sec := range []ConnectionSecurity{SecurityTLS, SecurityStartTLS, SecurityNone} {
		parsed, err := ParseConnectionSecurity(sec.Token())
		require.NoError(t, err)
		assert.Equal(t, sec, parsed)
		parsed, err = ParseConnectionSecurity(sec.String())
		require.NoError(t, err)
		assert.Equal(t, sec, parsed)
	}
	_, err := ParseConnectionSecurity("ssh")
	assert.Error(t, err)

	for a := range authTokens {
		parsed, err := ParseAuthType(a.Token())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	_, err = ParseAuthType("kerberos")
	assert.Error(t, err)

	assert.False(t, ConnectionSecurity(42).Valid())
	assert.False(t, AuthType(42).Valid())
	assert.Equal(t, "AuthType(42)", AuthType(42).String())
	assert.True(t, AuthXOAuth2.OAuth())
	assert.False(t, AuthLogin.OAuth())
}
