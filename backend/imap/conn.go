package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"git.sr.ht/~rjarry/mailbackend/backend"
	"git.sr.ht/~rjarry/mailbackend/log"
	"git.sr.ht/~rjarry/mailbackend/models"
)

const defaultTimeout = 90 * time.Second

// endpoint holds what both halves need to open a connection.
type endpoint struct {
	settings models.ServerSettings
	account  string
	addr     string
	tls      *tls.Config
	timeout  time.Duration

	// zero disables keepalive tuning
	keepalivePeriod   time.Duration
	keepaliveProbes   int
	keepaliveInterval time.Duration
}

var errNegative = errors.New("must not be negative")

func durationParam(s models.ServerSettings, key string, dst *time.Duration) error {
	value, ok := s.Param(key)
	if !ok {
		return nil
	}
	val, err := time.ParseDuration(value)
	if err == nil && val < 0 {
		err = errNegative
	}
	if err != nil {
		return fmt.Errorf("invalid %s value %v: %w", key, value, err)
	}
	*dst = val
	return nil
}

func newEndpoint(
	acct backend.Account, s models.ServerSettings, trust backend.TrustPolicy,
	tlsPort, plainPort int,
) (endpoint, error) {
	port := tlsPort
	if s.Security != models.SecurityTLS {
		port = plainPort
	}
	e := endpoint{
		settings: s,
		account:  acct.Name(),
		addr:     s.Addr(port),
		timeout:  defaultTimeout,

		keepaliveProbes:   3,
		keepaliveInterval: 3 * time.Second,
	}
	if s.Port != 0 {
		port = s.Port
	}
	if trust != nil {
		e.tls = trust.TLSConfig(s.Host, port)
	} else {
		e.tls = &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}
	}
	if err := durationParam(s, "connection-timeout", &e.timeout); err != nil {
		return e, err
	}
	if err := durationParam(s, "keepalive-period", &e.keepalivePeriod); err != nil {
		return e, err
	}
	if err := durationParam(s, "keepalive-interval", &e.keepaliveInterval); err != nil {
		return e, err
	}
	if value, ok := s.Param("keepalive-probes"); ok {
		val, err := strconv.Atoi(value)
		if err == nil && val < 0 {
			err = errNegative
		}
		if err != nil {
			return e, fmt.Errorf("invalid keepalive-probes value %v: %w", value, err)
		}
		e.keepaliveProbes = val
	}
	return e, nil
}

// setKeepalive enables TCP keepalive probes after keepalivePeriod of
// inactivity. Failing to tune the probes is not fatal.
func (e *endpoint) setKeepalive(conn *net.TCPConn) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	if err := conn.SetKeepAlivePeriod(e.keepalivePeriod); err != nil {
		return err
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return raw.Control(func(fd uintptr) {
		if err := setKeepaliveProbes(fd, e.keepaliveProbes); err != nil {
			log.Errorf("cannot set tcp keepalive probes: %v", err)
		}
		if err := setKeepaliveInterval(fd, e.keepaliveInterval); err != nil {
			log.Errorf("cannot set tcp keepalive interval: %v", err)
		}
	})
}

// dial opens the TCP connection, wrapped in TLS for implicit TLS. The
// context deadline, if any, applies to the whole session.
func (e *endpoint) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: e.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok && e.keepalivePeriod > 0 {
		if err := e.setKeepalive(tcp); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if e.settings.Security == models.SecurityTLS {
		tlsConn := tls.Client(conn, e.tls)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}
	return conn, nil
}
