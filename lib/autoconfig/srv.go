package autoconfig

import (
	"context"
	"net"
	"sort"
	"sync"

	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

var resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
} = net.DefaultResolver

// bestSRV returns the record with the lowest priority, the highest weight
// breaking ties.
func bestSRV(records []*net.SRV) *net.SRV {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})
	return records[0]
}

// fromSRV implements RFC 6186.
func fromSRV(ctx context.Context, localpart, domain string) *Result {
	services := map[string]*net.SRV{
		"imap":        nil,
		"imaps":       nil,
		"submission":  nil,
		"submissions": nil,
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for service := range services {
		wg.Add(1)
		go func(service string) {
			defer log.PanicHandler()
			defer wg.Done()
			_, records, err := resolver.LookupSRV(ctx, service, "tcp", domain)
			if err != nil || len(records) == 0 {
				return
			}
			srv := bestSRV(records)
			// "." means the service is explicitly not available
			if srv.Target == "." || srv.Target == "" || srv.Port == 0 {
				return
			}
			mu.Lock()
			services[service] = srv
			mu.Unlock()
		}(service)
	}
	wg.Wait()

	user := localpart + "@" + domain
	var r Result
	switch {
	case services["imaps"] != nil:
		srv := services["imaps"]
		r.Source = settings("imap", srv.Target, int(srv.Port), models.SecurityTLS, user)
	case services["imap"] != nil:
		srv := services["imap"]
		r.Source = settings("imap", srv.Target, int(srv.Port), models.SecurityStartTLS, user)
	default:
		return nil
	}
	switch {
	case services["submissions"] != nil:
		srv := services["submissions"]
		r.Outgoing = settings("smtp", srv.Target, int(srv.Port), models.SecurityTLS, user)
	case services["submission"] != nil:
		srv := services["submission"]
		r.Outgoing = settings("smtp", srv.Target, int(srv.Port), models.SecurityStartTLS, user)
	default:
		return nil
	}
	return &r
}
