package models

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// ConnectionSecurity is the transport security policy of a server endpoint.
// The zero value is implicit TLS.
type ConnectionSecurity int

const (
	SecurityTLS ConnectionSecurity = iota
	SecurityStartTLS
	SecurityNone
)

var securityTokens = map[ConnectionSecurity]string{
	SecurityTLS:      "tls",
	SecurityStartTLS: "starttls",
	SecurityNone:     "insecure",
}

// Token is the keyword used for this policy in a settings URI scheme.
func (s ConnectionSecurity) Token() string {
	return securityTokens[s]
}

func (s ConnectionSecurity) String() string {
	switch s {
	case SecurityTLS:
		return "implicit-tls"
	case SecurityStartTLS:
		return "starttls"
	case SecurityNone:
		return "none"
	}
	return fmt.Sprintf("ConnectionSecurity(%d)", int(s))
}

func (s ConnectionSecurity) Valid() bool {
	_, ok := securityTokens[s]
	return ok
}

// ParseConnectionSecurity accepts both scheme tokens and String() values.
func ParseConnectionSecurity(value string) (ConnectionSecurity, error) {
	switch strings.ToLower(value) {
	case "tls", "implicit-tls", "ssl":
		return SecurityTLS, nil
	case "starttls":
		return SecurityStartTLS, nil
	case "insecure", "none", "plain":
		return SecurityNone, nil
	}
	return 0, fmt.Errorf("unknown connection security %q", value)
}

// AuthType is the credential mechanism used to log into a server. The zero
// value is a plain username/password exchange.
type AuthType int

const (
	AuthPlain AuthType = iota
	AuthLogin
	AuthOAuthBearer
	AuthXOAuth2
	AuthNone
)

var authTokens = map[AuthType]string{
	AuthPlain:       "plain",
	AuthLogin:       "login",
	AuthOAuthBearer: "oauthbearer",
	AuthXOAuth2:     "xoauth2",
	AuthNone:        "none",
}

func (a AuthType) Token() string {
	return authTokens[a]
}

func (a AuthType) String() string {
	if tok, ok := authTokens[a]; ok {
		return tok
	}
	return fmt.Sprintf("AuthType(%d)", int(a))
}

func (a AuthType) Valid() bool {
	_, ok := authTokens[a]
	return ok
}

// OAuth reports whether the password field holds a token rather than a
// password.
func (a AuthType) OAuth() bool {
	return a == AuthOAuthBearer || a == AuthXOAuth2
}

func ParseAuthType(value string) (AuthType, error) {
	lower := strings.ToLower(value)
	for a, tok := range authTokens {
		if tok == lower {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown authentication type %q", value)
}

// ServerSettings describes a remote mail server endpoint independently of
// the protocol spoken with it. Values are meant to be treated as immutable:
// use Clone before modifying Extra.
type ServerSettings struct {
	Scheme   string
	Host     string
	Port     int
	Security ConnectionSecurity
	Auth     AuthType
	Username string
	Password string
	Extra    map[string]string
}

// Clone returns a copy that does not share the Extra map.
func (s ServerSettings) Clone() ServerSettings {
	c := s
	if s.Extra != nil {
		c.Extra = make(map[string]string, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Equal compares field by field. A nil Extra equals an empty one; a key
// mapped to "" is not equal to an absent key.
func (s ServerSettings) Equal(o ServerSettings) bool {
	if s.Scheme != o.Scheme || s.Host != o.Host || s.Port != o.Port ||
		s.Security != o.Security || s.Auth != o.Auth ||
		s.Username != o.Username || s.Password != o.Password {
		return false
	}
	if len(s.Extra) != len(o.Extra) {
		return false
	}
	for k, v := range s.Extra {
		if ov, ok := o.Extra[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (s ServerSettings) Param(key string) (string, bool) {
	v, ok := s.Extra[key]
	return v, ok
}

// ExtraKeys returns the Extra keys in sorted order.
func (s ServerSettings) ExtraKeys() []string {
	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Addr returns host:port, falling back to defaultPort when Port is unset.
func (s ServerSettings) Addr(defaultPort int) string {
	port := s.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}

// Redacted is a single line description suitable for logs.
func (s ServerSettings) Redacted() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", s.Scheme, s.Host)
	if s.Port != 0 {
		fmt.Fprintf(&b, ":%d", s.Port)
	}
	fmt.Fprintf(&b, " security=%s auth=%s", s.Security, s.Auth)
	if s.Username != "" {
		fmt.Fprintf(&b, " user=%s", s.Username)
	}
	if s.Password != "" {
		b.WriteString(" password=***")
	}
	for _, k := range s.ExtraKeys() {
		fmt.Fprintf(&b, " %s=%q", k, s.Extra[k])
	}
	return b.String()
}
