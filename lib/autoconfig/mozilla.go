package autoconfig

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

const ispdbURL = "https://autoconfig.thunderbird.net/v1.1/"

type server struct {
	Type           string   `xml:"type,attr"`
	Hostname       string   `xml:"hostname"`
	Port           string   `xml:"port"`
	SocketType     string   `xml:"socketType"`
	Username       string   `xml:"username"`
	Authentication []string `xml:"authentication"`
}

type clientConfig struct {
	XMLName  xml.Name `xml:"clientConfig"`
	Incoming []server `xml:"emailProvider>incomingServer"`
	Outgoing []server `xml:"emailProvider>outgoingServer"`
	OAuth2   struct {
		Scope    string `xml:"scope"`
		TokenURL string `xml:"tokenURL"`
	} `xml:"oAuth2"`
}

var httpClient = http.DefaultClient

func fetchConfig(ctx context.Context, u string) (*clientConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	var cc clientConfig
	if err := xml.NewDecoder(resp.Body).Decode(&cc); err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	return &cc, nil
}

func security(socketType string) models.ConnectionSecurity {
	switch strings.ToLower(socketType) {
	case "ssl", "tls":
		return models.SecurityTLS
	case "plain":
		return models.SecurityNone
	}
	return models.SecurityStartTLS
}

func (cc *clientConfig) convert(scheme string, servers []server, localpart, domain string) (models.ServerSettings, bool) {
	for _, srv := range servers {
		if !strings.EqualFold(srv.Type, scheme) {
			continue
		}
		port, err := strconv.Atoi(srv.Port)
		if err != nil || srv.Hostname == "" {
			continue
		}
		user := strings.NewReplacer(
			"%EMAILADDRESS%", localpart+"@"+domain,
			"%EMAILLOCALPART%", localpart,
			"%EMAILDOMAIN%", domain,
		).Replace(srv.Username)
		s := settings(scheme, srv.Hostname, port, security(srv.SocketType), user)

		var oauth, cleartext bool
		for _, a := range srv.Authentication {
			switch strings.ToLower(a) {
			case "password-cleartext", "plain":
				cleartext = true
			case "oauth2":
				oauth = true
			}
		}
		if oauth && !cleartext && cc.OAuth2.TokenURL != "" {
			s.Auth = models.AuthXOAuth2
			s.Extra = map[string]string{"token_endpoint": cc.OAuth2.TokenURL}
			if cc.OAuth2.Scope != "" {
				s.Extra["scope"] = cc.OAuth2.Scope
			}
		}
		return s, true
	}
	return models.ServerSettings{}, false
}

func resultFromConfig(cc *clientConfig, localpart, domain string) *Result {
	source, ok := cc.convert("imap", cc.Incoming, localpart, domain)
	if !ok {
		return nil
	}
	outgoing, ok := cc.convert("smtp", cc.Outgoing, localpart, domain)
	if !ok {
		return nil
	}
	return &Result{Source: source, Outgoing: outgoing}
}

// fromProvider asks the mail provider itself, first on the autoconfig
// subdomain then on the well-known path of the domain.
func fromProvider(ctx context.Context, localpart, domain string) *Result {
	query := "?emailaddress=" + url.QueryEscape(localpart+"@"+domain)
	for _, u := range []string{
		"https://autoconfig." + domain + "/mail/config-v1.1.xml" + query,
		"https://" + domain + "/.well-known/autoconfig/mail/config-v1.1.xml" + query,
	} {
		cc, err := fetchConfig(ctx, u)
		if err != nil {
			log.Tracef("autoconfig: %v", err)
			continue
		}
		if r := resultFromConfig(cc, localpart, domain); r != nil {
			return r
		}
	}
	return nil
}

// fromISPDB looks up Thunderbird's database of mail providers.
func fromISPDB(ctx context.Context, localpart, domain string) *Result {
	cc, err := fetchConfig(ctx, ispdbURL+url.PathEscape(domain))
	if err != nil {
		log.Tracef("ispdb: %v", err)
		return nil
	}
	return resultFromConfig(cc, localpart, domain)
}
