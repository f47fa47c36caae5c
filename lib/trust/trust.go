package trust

import (
	"bufio"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"git.sr.ht/~rjarry/mailbackend/log"
)

// Store accepts server certificates that either chain up to the system
// roots or whose leaf fingerprint was explicitly pinned for an endpoint.
type Store struct {
	mu     sync.RWMutex
	pinned map[string]map[string]struct{}
	// nil means system roots
	roots *x509.CertPool
}

func NewStore() *Store {
	return &Store{pinned: make(map[string]map[string]struct{})}
}

// WithRoots replaces the system roots, mainly for tests.
func (s *Store) WithRoots(roots *x509.CertPool) *Store {
	s.roots = roots
	return s
}

func endpoint(host string, port int) string {
	return net.JoinHostPort(strings.ToLower(host), strconv.Itoa(port))
}

// Fingerprint is the hex encoded SHA-256 of the DER certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Accept pins cert for host:port.
func (s *Store) Accept(host string, port int, cert *x509.Certificate) {
	s.pin(endpoint(host, port), Fingerprint(cert))
}

func (s *Store) pin(ep, fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fps, ok := s.pinned[ep]
	if !ok {
		fps = make(map[string]struct{})
		s.pinned[ep] = fps
	}
	fps[strings.ToLower(fingerprint)] = struct{}{}
}

func (s *Store) isPinned(ep string, cert *x509.Certificate) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pinned[ep][Fingerprint(cert)]
	return ok
}

// CertificateError is returned from the TLS handshake when a chain is
// neither trusted nor pinned. It carries the leaf so that callers can offer
// to Accept it.
type CertificateError struct {
	Host string
	Port int
	Leaf *x509.Certificate
	Err  error
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("untrusted certificate for %s (sha256 %s): %v",
		endpoint(e.Host, e.Port), Fingerprint(e.Leaf), e.Err)
}

func (e *CertificateError) Unwrap() error {
	return e.Err
}

// TLSConfig implements backend.TrustPolicy.
func (s *Store) TLSConfig(host string, port int) *tls.Config {
	ep := endpoint(host, port)
	return &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		// chain verification is done in VerifyConnection below so that
		// pinned self-signed certificates can be accepted
		InsecureSkipVerify: true, //nolint:gosec // see above
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("server presented no certificate")
			}
			leaf := cs.PeerCertificates[0]
			if s.isPinned(ep, leaf) {
				return nil
			}
			opts := x509.VerifyOptions{
				DNSName:       host,
				Roots:         s.roots,
				Intermediates: x509.NewCertPool(),
			}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			if _, err := leaf.Verify(opts); err != nil {
				return &CertificateError{Host: host, Port: port, Leaf: leaf, Err: err}
			}
			return nil
		},
	}
}

// Load reads pins from r, one "host:port fingerprint" per line. Blank lines
// and lines starting with '#' are ignored.
func (s *Store) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("line %d: expected <host:port> <sha256>", lineno)
		}
		host, port, err := net.SplitHostPort(fields[0])
		if err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("line %d: invalid port %q", lineno, port)
		}
		fp, err := hex.DecodeString(fields[1])
		if err != nil || len(fp) != sha256.Size {
			return fmt.Errorf("line %d: invalid fingerprint %q", lineno, fields[1])
		}
		s.pin(endpoint(host, p), fields[1])
	}
	return scanner.Err()
}

func (s *Store) Save(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eps := make([]string, 0, len(s.pinned))
	for ep := range s.pinned {
		eps = append(eps, ep)
	}
	sort.Strings(eps)
	for _, ep := range eps {
		fps := make([]string, 0, len(s.pinned[ep]))
		for fp := range s.pinned[ep] {
			fps = append(fps, fp)
		}
		sort.Strings(fps)
		for _, fp := range fps {
			if _, err := fmt.Fprintf(w, "%s %s\n", ep, fp); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadFile is Load on a file. A missing file yields an empty store.
func LoadFile(path string) (*Store, error) {
	s := NewStore()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debugf("no trusted certificates file at %s", path)
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := s.Load(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Store) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
