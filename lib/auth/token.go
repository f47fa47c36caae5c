package auth

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/oauth2"

	"git.sr.ht/~rjarry/mailbackend/lib/xdg"
	"git.sr.ht/~rjarry/mailbackend/models"
)

// OAuth2Config reads the client parameters carried in the settings extras
// (client_id, client_secret, token_endpoint, scope).
func OAuth2Config(s models.ServerSettings) *oauth2.Config {
	o := &oauth2.Config{
		ClientID:     s.Extra["client_id"],
		ClientSecret: s.Extra["client_secret"],
		Endpoint: oauth2.Endpoint{
			TokenURL: s.Extra["token_endpoint"],
		},
	}
	if scope := s.Extra["scope"]; scope != "" {
		o.Scopes = strings.Split(scope, " ")
	}
	return o
}

func tokenCachePath(account string, a models.AuthType) string {
	return xdg.CachePath(xdg.App, account+"-"+a.Token()+".token")
}

func saveRefreshToken(refreshToken, account string, a models.AuthType) error {
	p := tokenCachePath(account, a)
	if err := os.MkdirAll(path.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(refreshToken), 0o600)
}

func getRefreshToken(account string, a models.AuthType) (string, error) {
	buf, err := os.ReadFile(tokenCachePath(account, a))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

type refreshSource struct {
	ctx     context.Context
	conf    *oauth2.Config
	account string
	auth    models.AuthType
	initial string
}

// Token exchanges the cached refresh token (or the configured one when
// nothing is cached yet) and caches the refresh token returned by the
// server.
func (r *refreshSource) Token() (*oauth2.Token, error) {
	refresh := r.initial
	usedCache := false
	if cached, err := getRefreshToken(r.account, r.auth); err == nil && cached != "" {
		refresh = cached
		usedCache = true
	}
	token, err := r.conf.TokenSource(r.ctx, &oauth2.Token{
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}).Token()
	if err != nil {
		if usedCache {
			return nil, fmt.Errorf("%w: try deleting %s",
				err, tokenCachePath(r.account, r.auth))
		}
		return nil, err
	}
	if token.RefreshToken != "" {
		if err := saveRefreshToken(token.RefreshToken, r.account, r.auth); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// TokenSource returns the bearer tokens for s. Without a token_endpoint
// parameter the password is used as access token as is.
func TokenSource(ctx context.Context, s models.ServerSettings, account string) oauth2.TokenSource {
	conf := OAuth2Config(s)
	if conf.Endpoint.TokenURL == "" {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: s.Password,
			TokenType:   "Bearer",
		})
	}
	return oauth2.ReuseTokenSource(nil, &refreshSource{
		ctx:     ctx,
		conf:    conf,
		account: account,
		auth:    s.Auth,
		initial: s.Password,
	})
}

func AccessToken(ctx context.Context, s models.ServerSettings, account string) (string, error) {
	token, err := TokenSource(ctx, s, account).Token()
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}
