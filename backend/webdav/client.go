package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/lib/auth"
	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

const (
	submissionFolder = "##DavMailSubmissionURI##"

	propfindBody = `<?xml version="1.0" encoding="utf-8"?>` +
		`<propfind xmlns="DAV:"><prop><resourcetype/></prop></propfind>`
)

// client is shared by the store and the transport of one backend.
type client struct {
	settings models.ServerSettings
	log      log.Logger
	http     *http.Client
	// scheme and host only
	base     url.URL
	mailbox  string
	authPath string

	mu       sync.Mutex
	loggedIn bool
	closed   bool
}

func cleanPath(settings models.ServerSettings, key, fallback string) (string, error) {
	p, ok := settings.Param(key)
	if !ok || p == "" {
		return fallback, nil
	}
	if strings.ContainsAny(p, "?#") {
		return "", fmt.Errorf("invalid %s %q", key, p)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p), nil
}

func newClient(
	name string, settings models.ServerSettings, trust backend.TrustPolicy,
) (*client, error) {
	c := &client{
		settings: settings,
		log:      log.NewLogger(name, 2),
		base:     url.URL{Scheme: "https", Host: settings.Host},
	}
	defaultPort := 443
	if settings.Security == models.SecurityNone {
		c.base.Scheme = "http"
		defaultPort = 80
	}
	if settings.Port != 0 && settings.Port != defaultPort {
		c.base.Host = settings.Addr(defaultPort)
	} else if strings.Contains(settings.Host, ":") {
		c.base.Host = "[" + settings.Host + "]"
	}

	root, err := cleanPath(settings, "path", "/")
	if err != nil {
		return nil, err
	}
	if c.mailbox, err = cleanPath(settings, "mailbox-path", root); err != nil {
		return nil, err
	}
	if c.authPath, err = cleanPath(settings, "auth-path", ""); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if settings.Security != models.SecurityNone && trust != nil {
		port := settings.Port
		if port == 0 {
			port = defaultPort
		}
		transport.TLSClientConfig = trust.TLSConfig(settings.Host, port)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c.http = &http.Client{Transport: transport, Jar: jar}
	if settings.Auth == models.AuthOAuthBearer {
		c.http.Transport = &oauth2.Transport{
			Source: auth.TokenSource(context.Background(), settings, name),
			Base:   transport,
		}
	}
	return c, nil
}

// url returns the absolute URL of elems below the mailbox path. A trailing
// empty element adds a trailing slash.
func (c *client) url(elems ...string) string {
	u := c.base
	u.Path = path.Join(append([]string{c.mailbox}, elems...)...)
	if len(elems) == 0 || elems[len(elems)-1] == "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/"
	}
	return u.String()
}

func (c *client) do(
	ctx context.Context, method, target string, body io.Reader, header http.Header,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.settings.Auth == models.AuthPlain {
		req.SetBasicAuth(c.settings.Username, c.settings.Password)
	}
	c.log.Tracef("%s %s", method, target)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, &AuthError{Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, &StatusError{Method: method, URL: target, Status: resp.StatusCode}
	}
	return resp, nil
}

func (c *client) request(
	ctx context.Context, method, target string, body io.Reader, header http.Header,
) error {
	resp, err := c.do(ctx, method, target, body, header)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// login performs the form based authentication of Outlook Web Access when
// the settings carry an auth-path. The session cookie ends up in the jar.
func (c *client) login(ctx context.Context, force bool) error {
	if c.authPath == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn && !force {
		return nil
	}

	target := c.base
	target.Path = c.authPath
	form := url.Values{
		"destination":    {c.url("")},
		"flags":          {"4"},
		"forcedownlevel": {"0"},
		"trusted":        {"0"},
		"username":       {c.settings.Username},
		"password":       {c.settings.Password},
	}
	header := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	if err := c.request(ctx, http.MethodPost, target.String(),
		strings.NewReader(form.Encode()), header); err != nil {
		return fmt.Errorf("form login: %w", err)
	}
	if len(c.http.Jar.Cookies(&c.base)) == 0 {
		return fmt.Errorf("form login: %w", &AuthError{Status: http.StatusUnauthorized})
	}
	c.log.Debugf("form login to %s succeeded", target.String())
	c.loggedIn = true
	return nil
}

func (c *client) check(ctx context.Context) error {
	if err := c.login(ctx, true); err != nil {
		return err
	}
	header := http.Header{
		"Depth":        {"0"},
		"Content-Type": {`text/xml; charset="utf-8"`},
	}
	return c.request(ctx, "PROPFIND", c.url(""), strings.NewReader(propfindBody), header)
}

// put uploads msg as name into folder and returns its URL.
func (c *client) put(ctx context.Context, folder, name string, msg io.Reader) (string, error) {
	if err := c.login(ctx, false); err != nil {
		return "", err
	}
	target := c.url(folder, name)
	header := http.Header{"Content-Type": {"message/rfc822"}}
	if err := c.request(ctx, http.MethodPut, target, msg, header); err != nil {
		return "", err
	}
	return target, nil
}

func (c *client) move(ctx context.Context, source, destination string) error {
	header := http.Header{
		"Destination": {destination},
		"Overwrite":   {"F"},
	}
	return c.request(ctx, "MOVE", source, nil, header)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.http.CloseIdleConnections()
}
