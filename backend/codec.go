package backend

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"git.sr.ht/~rjarry/mailbackend/models"
)

// URICodec converts ServerSettings of one protocol to and from the string
// persisted in the account configuration:
//
//	<scheme>[+<security>][+<auth>]://[<user>[:<password>]@]<host>[:<port>]/[?<key>=<value>&...]
//
// The first entries of Securities and AuthTypes are the protocol defaults
// and are left out of the scheme when encoding.
type URICodec struct {
	Scheme     string
	Securities []models.ConnectionSecurity
	AuthTypes  []models.AuthType
}

func (c *URICodec) defaultSecurity() models.ConnectionSecurity {
	if len(c.Securities) == 0 {
		return models.SecurityTLS
	}
	return c.Securities[0]
}

func (c *URICodec) defaultAuth() models.AuthType {
	if len(c.AuthTypes) == 0 {
		return models.AuthPlain
	}
	return c.AuthTypes[0]
}

func (c *URICodec) supportsSecurity(s models.ConnectionSecurity) bool {
	if len(c.Securities) == 0 {
		return s == models.SecurityTLS
	}
	for _, sec := range c.Securities {
		if sec == s {
			return true
		}
	}
	return false
}

func (c *URICodec) supportsAuth(a models.AuthType) bool {
	if len(c.AuthTypes) == 0 {
		return a == models.AuthPlain
	}
	for _, auth := range c.AuthTypes {
		if auth == a {
			return true
		}
	}
	return false
}

// BaseScheme returns the protocol part of a URI scheme, i.e. everything
// before the first '+'.
func BaseScheme(scheme string) string {
	base, _, _ := strings.Cut(scheme, "+")
	return strings.ToLower(base)
}

// parseScheme splits "webdav+insecure+none" into its protocol, security and
// authentication parts.
func (c *URICodec) parseScheme(uri, scheme string) (
	models.ConnectionSecurity, models.AuthType, error,
) {
	security := c.defaultSecurity()
	auth := c.defaultAuth()
	parts := strings.Split(strings.ToLower(scheme), "+")
	if parts[0] != c.Scheme {
		return 0, 0, &MalformedSettingsError{
			URI:    redactURI(uri),
			Reason: "unsupported scheme",
			Err:    &SchemeMismatchError{Expected: c.Scheme, Got: parts[0]},
		}
	}
	var gotSecurity, gotAuth bool
	for _, tok := range parts[1:] {
		if sec, err := models.ParseConnectionSecurity(tok); err == nil &&
			tok == sec.Token() {
			if gotSecurity {
				return 0, 0, malformed(uri, "duplicate security in scheme %q", scheme)
			}
			if !c.supportsSecurity(sec) {
				return 0, 0, malformed(uri, "%s does not support %s", c.Scheme, sec)
			}
			security, gotSecurity = sec, true
			continue
		}
		if a, err := models.ParseAuthType(tok); err == nil {
			if gotAuth {
				return 0, 0, malformed(uri, "duplicate authentication in scheme %q", scheme)
			}
			if !c.supportsAuth(a) {
				return 0, 0, malformed(uri, "%s does not support %s authentication", c.Scheme, a)
			}
			auth, gotAuth = a, true
			continue
		}
		return 0, 0, malformed(uri, "unknown scheme option %q", tok)
	}
	return security, auth, nil
}

func (c *URICodec) Decode(uri string) (models.ServerSettings, error) {
	var s models.ServerSettings

	u, err := url.Parse(uri)
	if err != nil {
		return s, &MalformedSettingsError{URI: redactURI(uri), Err: unwrapURLError(err)}
	}
	if u.Scheme == "" {
		return s, malformed(uri, "missing scheme")
	}
	security, auth, err := c.parseScheme(uri, u.Scheme)
	if err != nil {
		return s, err
	}
	if u.Opaque != "" {
		return s, malformed(uri, "expected %s://", u.Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		return s, malformed(uri, "unexpected path %q", u.Path)
	}
	if u.Fragment != "" || strings.HasSuffix(uri, "#") {
		return s, malformed(uri, "unexpected fragment")
	}

	s.Scheme = c.Scheme
	s.Security = security
	s.Auth = auth
	s.Host = u.Hostname()
	if s.Host == "" {
		return s, malformed(uri, "missing host")
	}
	if p := u.Port(); p != "" {
		s.Port, err = strconv.Atoi(p)
		if err != nil || s.Port < 1 || s.Port > 65535 {
			return s, malformed(uri, "invalid port %q", p)
		}
	} else if strings.HasSuffix(u.Host, ":") {
		return s, malformed(uri, "empty port")
	}
	if u.User != nil {
		s.Username = u.User.Username()
		s.Password, _ = u.User.Password()
	}

	if u.RawQuery != "" {
		query, err := url.ParseQuery(u.RawQuery)
		if err != nil {
			return s, &MalformedSettingsError{
				URI: redactURI(uri), Reason: "invalid parameters", Err: err,
			}
		}
		s.Extra = make(map[string]string, len(query))
		for key, values := range query {
			if key == "" {
				return s, malformed(uri, "empty parameter name")
			}
			if len(values) != 1 {
				return s, malformed(uri, "parameter %q given %d times", key, len(values))
			}
			s.Extra[key] = values[0]
		}
	}

	if err := c.validate(s); err != "" {
		return s, malformed(uri, "%s", err)
	}
	return s, nil
}

func (c *URICodec) Encode(s models.ServerSettings) (string, error) {
	if s.Scheme != c.Scheme {
		return "", &SchemeMismatchError{Expected: c.Scheme, Got: s.Scheme}
	}
	if reason := c.validate(s); reason != "" {
		return "", &MalformedSettingsError{Reason: reason}
	}
	if !c.supportsSecurity(s.Security) {
		return "", &MalformedSettingsError{
			Reason: c.Scheme + " does not support " + s.Security.String(),
		}
	}
	if !c.supportsAuth(s.Auth) {
		return "", &MalformedSettingsError{
			Reason: c.Scheme + " does not support " + s.Auth.String() + " authentication",
		}
	}

	scheme := c.Scheme
	if s.Security != c.defaultSecurity() {
		scheme += "+" + s.Security.Token()
	}
	if s.Auth != c.defaultAuth() {
		scheme += "+" + s.Auth.Token()
	}

	u := url.URL{Scheme: scheme, Path: "/"}
	switch {
	case s.Password != "":
		u.User = url.UserPassword(s.Username, s.Password)
	case s.Username != "":
		u.User = url.User(s.Username)
	}
	host := s.Host
	if s.Port != 0 {
		host = net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u.Host = host

	if len(s.Extra) > 0 {
		params := make([]string, 0, len(s.Extra))
		for _, key := range s.ExtraKeys() {
			params = append(params,
				escapeParam(key)+"="+escapeParam(s.Extra[key]))
		}
		u.RawQuery = strings.Join(params, "&")
	}
	uri := u.String()
	if _, err := c.Decode(uri); err != nil {
		return "", &MalformedSettingsError{Reason: "cannot be read back", Err: err}
	}
	return uri, nil
}

// validate checks the rules shared by Decode and Encode and returns a
// human readable reason on failure.
func (c *URICodec) validate(s models.ServerSettings) string {
	switch {
	case s.Host == "":
		return "missing host"
	case !validHost(s.Host):
		return "invalid host " + strconv.Quote(s.Host)
	case s.Port < 0 || s.Port > 65535:
		return "invalid port " + strconv.Itoa(s.Port)
	case !s.Security.Valid():
		return "invalid connection security " + s.Security.String()
	case !s.Auth.Valid():
		return "invalid authentication type " + s.Auth.String()
	case s.Username == "" && s.Auth != models.AuthNone:
		return "missing username"
	}
	for key := range s.Extra {
		if key == "" {
			return "empty parameter name"
		}
	}
	return ""
}

// validHost accepts registered names and IPv6 literals: ASCII bytes must be
// unreserved or sub-delims (RFC 3986) or ':'. Other bytes would be escaped
// in a way url.Parse refuses to read back.
func validHost(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		switch {
		case c >= 0x80:
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("-._~!$&'()*+,;=:", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// escapeParam is url.QueryEscape that keeps slashes readable, they carry no
// special meaning in a query.
func escapeParam(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "%2F", "/")
}

func unwrapURLError(err error) error {
	if uerr, ok := err.(*url.Error); ok {
		return uerr.Err
	}
	return err
}

// redactURI hides the password of uri so that it can be part of an error
// message.
func redactURI(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		return u.Redacted()
	}
	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = "xxxxx" + rest[at:]
	}
	return scheme + "://" + rest
}
