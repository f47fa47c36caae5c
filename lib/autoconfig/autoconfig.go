// Package autoconfig discovers the IMAP and SMTP settings of a mail address
// from DNS SRV records, Thunderbird style autoconfig files and educated
// guesses.
package autoconfig

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

var ErrNotFound = errors.New("no configuration found")

// Result holds discovered settings without credentials.
type Result struct {
	// how the settings were found: srv, autoconfig, ispdb, guess or mx
	Method   string
	Source   models.ServerSettings
	Outgoing models.ServerSettings
}

type lookup struct {
	method string
	fn     func(ctx context.Context, localpart, domain string) *Result
}

// in order of preference
var lookups = []lookup{
	{"srv", fromSRV},
	{"autoconfig", fromProvider},
	{"ispdb", fromISPDB},
	{"guess", fromGuess},
	{"mx", fromMX},
}

// Discover runs every lookup concurrently and returns the result of the
// most trusted one that succeeded before ctx expired.
func Discover(ctx context.Context, email string) (*Result, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return nil, err
	}
	localpart, domain, found := strings.Cut(addr.Address, "@")
	if !found || domain == "" {
		return nil, errors.New("address without domain")
	}
	log.Debugf("looking up configuration for %q", addr.Address)

	results := make([]chan *Result, len(lookups))
	for i, l := range lookups {
		results[i] = make(chan *Result, 1)
		go func(l lookup, res chan<- *Result) {
			defer log.PanicHandler()
			defer close(res)
			if r := l.fn(ctx, localpart, domain); r != nil {
				r.Method = l.method
				res <- r
			}
		}(l, results[i])
	}

	for i, res := range results {
		select {
		case r, ok := <-res:
			if ok {
				log.Debugf("found configuration via %s", r.Method)
				return r, nil
			}
			log.Tracef("%s: nothing found", lookups[i].method)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, ErrNotFound
}

func settings(scheme, host string, port int, sec models.ConnectionSecurity, user string) models.ServerSettings {
	return models.ServerSettings{
		Scheme:   scheme,
		Host:     strings.TrimSuffix(host, "."),
		Port:     port,
		Security: sec,
		Auth:     models.AuthPlain,
		Username: user,
	}
}
