package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/mailbackend/models"
)

func TestMechanism(t *testing.T) {
	assert.Equal(t, "PLAIN", Mechanism(models.AuthPlain))
	assert.Equal(t, "LOGIN", Mechanism(models.AuthLogin))
	assert.Equal(t, "OAUTHBEARER", Mechanism(models.AuthOAuthBearer))
	assert.Equal(t, "XOAUTH2", Mechanism(models.AuthXOAuth2))
	assert.Equal(t, "", Mechanism(models.AuthNone))
}

func TestNewSaslClient(t *testing.T) {
	s := models.ServerSettings{Username: "bob", Password: "pw"}

	c, err := NewSaslClient(context.Background(), s, "acct")
	require.NoError(t, err)
	mech, ir, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", mech)
	assert.Equal(t, "\x00bob\x00pw", string(ir))

	s.Auth = models.AuthNone
	c, err = NewSaslClient(context.Background(), s, "acct")
	require.NoError(t, err)
	assert.Nil(t, c)

	s.Auth = models.AuthXOAuth2
	c, err = NewSaslClient(context.Background(), s, "acct")
	require.NoError(t, err)
	mech, ir, err = c.Start()
	require.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	assert.Equal(t, "user=bob\x01auth=Bearer pw\x01\x01", string(ir))

	_, err = c.Next([]byte(`{"status":"401","schemes":"bearer"}`))
	var xerr *Xoauth2Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "401", xerr.Status)

	s.Auth = models.AuthType(99)
	_, err = NewSaslClient(context.Background(), s, "acct")
	assert.Error(t, err)
}

func TestOAuth2Config(t *testing.T) {
	conf := OAuth2Config(models.ServerSettings{Extra: map[string]string{
		"client_id":      "id",
		"client_secret":  "secret",
		"scope":          "mail offline_access",
		"token_endpoint": "https://login.example.com/token",
	}})
	assert.Equal(t, "id", conf.ClientID)
	assert.Equal(t, "secret", conf.ClientSecret)
	assert.Equal(t, []string{"mail", "offline_access"}, conf.Scopes)
	assert.Equal(t, "https://login.example.com/token", conf.Endpoint.TokenURL)

	assert.Empty(t, OAuth2Config(models.ServerSettings{}).Scopes)
}

func TestAccessTokenRefreshAndCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		expected := "initial-refresh"
		if n > 1 {
			expected = "rotated-1"
		}
		assert.Equal(t, expected, r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer",`+
			`"refresh_token":"rotated-%d","expires_in":3600}`, n, n)
	}))
	defer srv.Close()

	s := models.ServerSettings{
		Auth:     models.AuthOAuthBearer,
		Username: "bob",
		Password: "initial-refresh",
		Extra: map[string]string{
			"client_id":      "id",
			"token_endpoint": srv.URL,
		},
	}
	token, err := AccessToken(context.Background(), s, "work")
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	cached, err := os.ReadFile(tokenCachePath("work", models.AuthOAuthBearer))
	require.NoError(t, err)
	assert.Equal(t, "rotated-1", string(cached))

	token, err = AccessToken(context.Background(), s, "work")
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
}

func TestAccessTokenStatic(t *testing.T) {
	token, err := AccessToken(context.Background(), models.ServerSettings{
		Auth: models.AuthOAuthBearer, Password: "raw-token",
	}, "work")
	require.NoError(t, err)
	assert.Equal(t, "raw-token", token)
}
