package autoconfig

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

type portSecurity struct {
	port int
	sec  models.ConnectionSecurity
}

var (
	imapPorts = []portSecurity{
		{993, models.SecurityTLS},
		{143, models.SecurityStartTLS},
	}
	smtpPorts = []portSecurity{
		{465, models.SecurityTLS},
		{587, models.SecurityStartTLS},
	}
)

const probeTimeout = 5 * time.Second

// assign to a var to allow mocking in unit tests
var dial = func(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: probeTimeout}
	return d.DialContext(ctx, "tcp", addr)
}

// probe returns the first host and port accepting TCP connections.
func probe(ctx context.Context, hosts []string, ports []portSecurity) (string, *portSecurity) {
	for _, host := range hosts {
		for i, ps := range ports {
			conn, err := dial(ctx, net.JoinHostPort(host, strconv.Itoa(ps.port)))
			if err != nil {
				continue
			}
			conn.Close()
			return host, &ports[i]
		}
	}
	return "", nil
}

func probeBoth(ctx context.Context, imapHosts, smtpHosts []string, user string) *Result {
	var r Result
	var imapOK, smtpOK bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer log.PanicHandler()
		defer wg.Done()
		if host, ps := probe(ctx, imapHosts, imapPorts); ps != nil {
			r.Source = settings("imap", host, ps.port, ps.sec, user)
			imapOK = true
		}
	}()
	go func() {
		defer log.PanicHandler()
		defer wg.Done()
		if host, ps := probe(ctx, smtpHosts, smtpPorts); ps != nil {
			r.Outgoing = settings("smtp", host, ps.port, ps.sec, user)
			smtpOK = true
		}
	}()
	wg.Wait()
	if !imapOK || !smtpOK {
		return nil
	}
	return &r
}

// fromGuess tries the usual imap., smtp. and mail. subdomains.
func fromGuess(ctx context.Context, localpart, domain string) *Result {
	return probeBoth(ctx,
		[]string{"imap." + domain, "mail." + domain},
		[]string{"smtp." + domain, "mail." + domain},
		localpart+"@"+domain)
}

// fromMX assumes the preferred mail exchanger also serves IMAP and
// submission.
func fromMX(ctx context.Context, localpart, domain string) *Result {
	records, err := resolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return nil
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
	host := strings.TrimSuffix(records[0].Host, ".")
	if host == "" {
		return nil
	}
	return probeBoth(ctx, []string{host}, []string{host}, localpart+"@"+domain)
}
